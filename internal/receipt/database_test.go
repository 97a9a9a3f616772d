package receipt

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-scanner/internal/extraction"
)

var _ = Describe("BoltDB", func() {
	var db *BoltDB

	BeforeEach(func() {
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(db.Close()).To(Succeed())
	})

	storedRecord := func(id string) *ProcessedReceipt {
		total := 3.98
		return &ProcessedReceipt{
			ID: id,
			Receipt: &extraction.StructuredReceipt{
				Store:   extraction.Store{Name: "EDEKA", Chain: "EDEKA"},
				Totals:  extraction.Totals{TotalAmount: &total, Currency: "EUR"},
				RawText: "EDEKA\nSUMME EUR 3,98",
			},
			ServiceUsed: "gemini",
			Filename:    id + "_receipt.jpg",
			ContentType: "image/jpeg",
			CreatedAt:   time.Date(2025, 6, 5, 8, 49, 0, 0, time.UTC),
			UpdatedAt:   time.Date(2025, 6, 5, 8, 49, 0, 0, time.UTC),
		}
	}

	It("round-trips a record", func() {
		Expect(db.SaveReceipt(storedRecord("r1"))).To(Succeed())

		got, err := db.GetReceipt("r1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Receipt.Store.Name).To(Equal("EDEKA"))
		Expect(got.Receipt.Totals.TotalAmount).To(HaveValue(BeNumerically("~", 3.98, 1e-9)))
		Expect(got.ServiceUsed).To(Equal("gemini"))
		Expect(got.CreatedAt.Equal(time.Date(2025, 6, 5, 8, 49, 0, 0, time.UTC))).To(BeTrue())
	})

	It("fails to get an unknown ID", func() {
		_, err := db.GetReceipt("missing")
		Expect(err).To(HaveOccurred())
	})

	It("lists every stored record", func() {
		Expect(db.SaveReceipt(storedRecord("r1"))).To(Succeed())
		Expect(db.SaveReceipt(storedRecord("r2"))).To(Succeed())

		records, err := db.ListReceipts()
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(2))
	})

	It("returns an empty list when nothing is stored", func() {
		records, err := db.ListReceipts()
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(BeEmpty())
	})

	It("deletes a record", func() {
		Expect(db.SaveReceipt(storedRecord("r1"))).To(Succeed())
		Expect(db.DeleteReceipt("r1")).To(Succeed())

		_, err := db.GetReceipt("r1")
		Expect(err).To(HaveOccurred())
	})
})
