package recognition

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Registry", func() {
	var registry *Registry

	BeforeEach(func() {
		registry = NewRegistry()
	})

	It("lists the built-in backends in trust order", func() {
		Expect(registry.Names()).To(Equal([]string{"gemini", "vision", "azure", "ollama", "tesseract"}))
	})

	It("describes every backend without constructing clients", func() {
		descriptors := registry.ListAvailable()
		Expect(descriptors).To(HaveLen(5))
		Expect(descriptors[0].Name).To(Equal("gemini"))
		Expect(descriptors[0].CredentialShape).To(Equal(CredentialAPIKey))
		Expect(descriptors[0].SupportsConfidence).To(BeFalse())
		Expect(descriptors[4].Name).To(Equal("tesseract"))
		Expect(descriptors[4].Kind).To(Equal(KindLocal))
		Expect(descriptors[4].SupportsConfidence).To(BeTrue())
	})

	It("recommends orientation detection for azure", func() {
		Expect(registry.DefaultOptions("azure").DetectOrientation).To(BeTrue())
	})

	Describe("Create", func() {
		It("fails with UnavailableError for an unknown name", func() {
			_, err := registry.Create("carrier-pigeon", BackendConfig{}, Credentials{})
			var unavailable *UnavailableError
			Expect(errors.As(err, &unavailable)).To(BeTrue())
			Expect(unavailable.Name).To(Equal("carrier-pigeon"))
		})

		It("fails when a key-shaped backend gets no key", func() {
			_, err := registry.Create("gemini", BackendConfig{}, Credentials{})
			var unavailable *UnavailableError
			Expect(errors.As(err, &unavailable)).To(BeTrue())
		})

		It("fails when azure is missing its endpoint", func() {
			_, err := registry.Create("azure", BackendConfig{}, Credentials{APIKey: "secret"})
			var unavailable *UnavailableError
			Expect(errors.As(err, &unavailable)).To(BeTrue())
		})

		It("constructs credential-free backends without credentials", func() {
			backend, err := registry.Create("ollama", BackendConfig{Model: "llava"}, Credentials{})
			Expect(err).NotTo(HaveOccurred())
			Expect(backend.Describe().Name).To(Equal("ollama"))
		})

		It("constructs tesseract with configured languages", func() {
			backend, err := registry.Create("tesseract", BackendConfig{Languages: []string{"deu", "eng"}}, Credentials{})
			Expect(err).NotTo(HaveOccurred())
			Expect(backend.Describe().Name).To(Equal("tesseract"))
		})
	})

	Describe("CreateMany", func() {
		It("keeps the available backends and records the failures", func() {
			backends, failures := registry.CreateMany(
				[]string{"gemini", "ollama"},
				map[string]BackendConfig{},
				map[string]Credentials{},
			)
			Expect(backends).To(HaveKey("ollama"))
			Expect(backends).NotTo(HaveKey("gemini"))
			Expect(failures).To(HaveLen(1))
			Expect(failures[0].Name).To(Equal("gemini"))
		})
	})
})

var _ = Describe("validateInput", func() {
	descriptor := Descriptor{
		Name:             "test",
		MaxInputBytes:    1024,
		SupportedFormats: []string{".png", ".jpg", ".jpeg"},
	}

	It("accepts in-memory data with a supported extension", func() {
		v := validateInput(Input{Data: []byte("img"), Filename: "receipt.PNG"}, descriptor)
		Expect(v.Valid).To(BeTrue())
		Expect(v.FileSize).To(Equal(int64(3)))
		Expect(v.FileFormat).To(Equal(".png"))
	})

	It("rejects an unreadable path", func() {
		v := validateInput(Input{Path: "/nonexistent/receipt.png"}, descriptor)
		Expect(v.Valid).To(BeFalse())
		Expect(v.Reason).To(ContainSubstring("not readable"))
	})

	It("rejects empty data", func() {
		v := validateInput(Input{Data: []byte{}, Filename: "receipt.png"}, descriptor)
		Expect(v.Valid).To(BeFalse())
		Expect(v.Reason).To(Equal("file is empty"))
	})

	It("rejects data over the size limit", func() {
		v := validateInput(Input{Data: make([]byte, 2048), Filename: "receipt.png"}, descriptor)
		Expect(v.Valid).To(BeFalse())
		Expect(v.Reason).To(ContainSubstring("exceeds limit"))
	})

	It("rejects an unsupported extension", func() {
		v := validateInput(Input{Data: []byte("text"), Filename: "receipt.txt"}, descriptor)
		Expect(v.Valid).To(BeFalse())
		Expect(v.Reason).To(ContainSubstring("unsupported format"))
	})

	It("rejects a missing extension", func() {
		v := validateInput(Input{Data: []byte("img"), Filename: "receipt"}, descriptor)
		Expect(v.Valid).To(BeFalse())
		Expect(v.Reason).To(Equal("file has no extension"))
	})
})
