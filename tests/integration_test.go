package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-scanner/internal/receipt"
	"github.com/zombor/receipt-scanner/internal/recognition"
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Integration Suite")
}

const recognizedText = `EDEKA
Dörpfeldstr. 46
G&G Gouda 1,99 € x 2 3,98 €
SUMME EUR 3,98
Girocard
05.06.2025 08:49`

// stubRecognizer stands in for the orchestrator so the full HTTP,
// extraction and persistence path runs without any OCR engine.
type stubRecognizer struct {
	text       string
	confidence float64
	backend    string
	err        error
}

func (s *stubRecognizer) Recognize(ctx context.Context, in recognition.Input, opts recognition.Options) (*recognition.Outcome, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &recognition.Outcome{
		Result: &recognition.Result{
			Text:       s.text,
			Confidence: s.confidence,
			Metadata:   recognition.ResultMetadata{Backend: s.backend, Filename: in.Name()},
		},
		ServiceUsed:  s.backend,
		FallbackUsed: false,
	}, nil
}

func uploadReceipt(url, filename string, data []byte) (*http.Response, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, url+"/api/receipts", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return http.DefaultClient.Do(req)
}

var _ = Describe("Receipt API", func() {
	var (
		db         *receipt.BoltDB
		recognizer *stubRecognizer
		server     *httptest.Server
	)

	newServer := func(auth receipt.BasicAuth) *httptest.Server {
		tmp := GinkgoT().TempDir()

		var err error
		db, err = receipt.NewBoltDB(filepath.Join(tmp, "receipts.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { db.Close() })

		storage, err := receipt.NewLocalStorage(filepath.Join(tmp, "files"))
		Expect(err).NotTo(HaveOccurred())

		service := receipt.NewService(db, recognizer, storage, recognition.Options{Language: "de"})
		descriptors := recognition.NewRegistry().ListAvailable()
		return httptest.NewServer(receipt.NewServer(service, descriptors, auth))
	}

	BeforeEach(func() {
		recognizer = &stubRecognizer{
			text:       recognizedText,
			confidence: 0.92,
			backend:    "gemini",
		}
		server = newServer(receipt.BasicAuth{})
		DeferCleanup(server.Close)
	})

	It("processes an upload end to end", func() {
		resp, err := uploadReceipt(server.URL, "edeka.jpg", []byte("fake image bytes"))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var record receipt.ProcessedReceipt
		Expect(json.NewDecoder(resp.Body).Decode(&record)).To(Succeed())

		Expect(record.ID).NotTo(BeEmpty())
		Expect(record.ServiceUsed).To(Equal("gemini"))
		Expect(record.FallbackUsed).To(BeFalse())
		Expect(record.Receipt.Store.Name).To(Equal("EDEKA"))
		Expect(record.Receipt.Store.Chain).To(Equal("EDEKA"))
		Expect(record.Receipt.Items).To(HaveLen(1))
		Expect(record.Receipt.Items[0].ProductName).To(ContainSubstring("G&G Gouda"))
		Expect(record.Receipt.Items[0].Quantity).To(BeNumerically("==", 2))
		Expect(record.Receipt.Totals.TotalAmount).To(HaveValue(BeNumerically("~", 3.98, 1e-9)))
		Expect(record.Receipt.Totals.Currency).To(Equal("EUR"))
		Expect(record.Receipt.Payment.CardType).To(Equal("Girocard"))
		Expect(record.Receipt.Metadata.Date).To(Equal("05.06.2025"))
		Expect(record.Receipt.Confidence).To(BeNumerically("~", 0.92, 1e-9))

		// The record must be durably stored, not just echoed back.
		stored, err := db.GetReceipt(record.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Receipt.Store.Name).To(Equal("EDEKA"))
	})

	It("serves the record and original file back", func() {
		resp, err := uploadReceipt(server.URL, "edeka.jpg", []byte("fake image bytes"))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var record receipt.ProcessedReceipt
		Expect(json.NewDecoder(resp.Body).Decode(&record)).To(Succeed())

		getResp, err := http.Get(fmt.Sprintf("%s/api/receipts/%s", server.URL, record.ID))
		Expect(err).NotTo(HaveOccurred())
		defer getResp.Body.Close()
		Expect(getResp.StatusCode).To(Equal(http.StatusOK))

		fileResp, err := http.Get(fmt.Sprintf("%s/api/receipts/%s/file", server.URL, record.ID))
		Expect(err).NotTo(HaveOccurred())
		defer fileResp.Body.Close()
		Expect(fileResp.StatusCode).To(Equal(http.StatusOK))
		data, err := io.ReadAll(fileResp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("fake image bytes")))
	})

	It("lists uploaded receipts", func() {
		for _, name := range []string{"a.jpg", "b.jpg"} {
			resp, err := uploadReceipt(server.URL, name, []byte("fake image bytes"))
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
		}

		resp, err := http.Get(server.URL + "/api/receipts")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var records []receipt.ProcessedReceipt
		Expect(json.NewDecoder(resp.Body).Decode(&records)).To(Succeed())
		Expect(records).To(HaveLen(2))
	})

	It("deletes a receipt", func() {
		resp, err := uploadReceipt(server.URL, "edeka.jpg", []byte("fake image bytes"))
		Expect(err).NotTo(HaveOccurred())
		var record receipt.ProcessedReceipt
		Expect(json.NewDecoder(resp.Body).Decode(&record)).To(Succeed())
		resp.Body.Close()

		req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/receipts/%s", server.URL, record.ID), nil)
		Expect(err).NotTo(HaveOccurred())
		delResp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		delResp.Body.Close()
		Expect(delResp.StatusCode).To(Equal(http.StatusNoContent))

		getResp, err := http.Get(fmt.Sprintf("%s/api/receipts/%s", server.URL, record.ID))
		Expect(err).NotTo(HaveOccurred())
		getResp.Body.Close()
		Expect(getResp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("describes the known backends", func() {
		resp, err := http.Get(server.URL + "/api/backends")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var descriptors []recognition.Descriptor
		Expect(json.NewDecoder(resp.Body).Decode(&descriptors)).To(Succeed())
		Expect(descriptors).To(HaveLen(5))
		Expect(descriptors[0].Name).To(Equal("gemini"))
	})

	When("every backend fails", func() {
		BeforeEach(func() {
			recognizer.err = &recognition.AllBackendsFailedError{
				Attempts: []recognition.AttemptError{
					{Backend: "gemini", Err: fmt.Errorf("quota exhausted")},
				},
			}
		})

		It("answers 502", func() {
			resp, err := uploadReceipt(server.URL, "edeka.jpg", []byte("fake image bytes"))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.ToLower(string(body))).To(ContainSubstring("backend"))
		})
	})

	It("rejects an upload with no file", func() {
		resp, err := http.Post(server.URL+"/api/receipts", "multipart/form-data; boundary=x", strings.NewReader("--x--"))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	When("basic auth is configured", func() {
		BeforeEach(func() {
			server.Close()
			server = newServer(receipt.BasicAuth{Username: "scanner", Password: "secret"})
			DeferCleanup(server.Close)
		})

		It("rejects unauthenticated requests", func() {
			resp, err := http.Get(server.URL + "/api/receipts")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("accepts the configured credentials", func() {
			req, err := http.NewRequest(http.MethodGet, server.URL+"/api/receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("scanner", "secret")

			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
