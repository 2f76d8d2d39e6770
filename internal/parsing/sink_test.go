package parsing

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("FileSink", func() {
	var (
		path string
		sink *FileSink
	)

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "unrecognized_services.txt")
		sink = NewFileSink(path)
	})

	Describe("Record", func() {
		It("should append one line per phrase", func() {
			sink.Record("2026-07-02", "О930ТР", "латки")
			sink.Record("2026-07-02", "ВН437", "тонировка")

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("2026-07-02, О930ТР, латки\n2026-07-02, ВН437, тонировка\n"))
		})

		It("should serialize concurrent writers", func() {
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					sink.Record("2026-07-02", "А123ВС", "латки")
				}()
			}
			wg.Wait()

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
			Expect(lines).To(HaveLen(50))
			for _, l := range lines {
				Expect(l).To(Equal("2026-07-02, А123ВС, латки"))
			}
		})

		When("the log cannot be opened", func() {
			BeforeEach(func() {
				sink = NewFileSink(filepath.Join(GinkgoT().TempDir(), "missing", "log.txt"))
			})

			It("should not panic", func() {
				Expect(func() { sink.Record("2026-07-02", "А123ВС", "латки") }).NotTo(Panic())
			})
		})
	})

	Describe("Records", func() {
		When("nothing was recorded", func() {
			It("should return an empty list", func() {
				records, err := sink.Records()
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(BeEmpty())
			})
		})

		When("phrases were recorded", func() {
			BeforeEach(func() {
				sink.Record("2026-07-02", "О930ТР", "латки, мелкие")
			})

			It("should read them back", func() {
				records, err := sink.Records()
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(Equal([]UnrecognizedPhrase{
					{Date: "2026-07-02", Plate: "О930ТР", Phrase: "латки, мелкие"},
				}))
			})
		})
	})
})
