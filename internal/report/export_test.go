package report

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"
)

var _ = Describe("Export", func() {
	var (
		db      *mockDB
		storage *mockStorage
		service *Service
		july    Period
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		july = Period{From: "2026-07-01", To: "2026-07-31"}
	})

	JustBeforeEach(func() {
		service = NewServiceWithDeps(db, &mockParser{}, storage, Options{}, &mockIDGenerator{}, &mockTimeSource{})
	})

	Describe("ExportXLSX", func() {
		When("the period has cars", func() {
			BeforeEach(func() {
				db.users["42"] = &User{ID: "42", Name: "Иван"}
				db.reports["r1"] = &WorkReport{ID: "r1", UserID: "42", Date: "2026-07-02", Cars: []Car{
					{Plate: "О930ТР", Description: "капот", Area: 1.5, Cost: 540, LaborCost: 500},
				}}
			})

			It("should name the file after the period", func() {
				_, filename, err := service.ExportXLSX(july)
				Expect(err).NotTo(HaveOccurred())
				Expect(filename).To(Equal("report_2026-07-01_to_2026-07-31.xlsx"))
			})

			It("should write the header and a row per car", func() {
				data, _, err := service.ExportXLSX(july)
				Expect(err).NotTo(HaveOccurred())

				f, err := excelize.OpenReader(bytes.NewReader(data))
				Expect(err).NotTo(HaveOccurred())
				defer f.Close()

				rows, err := f.GetRows("Детализация")
				Expect(err).NotTo(HaveOccurred())
				Expect(rows).To(HaveLen(2))
				Expect(rows[0]).To(Equal([]string{"№", "Номер", "Описание", "Площадь (м²)", "Материалы (руб)", "Работы (руб)", "Дата", "Исполнитель"}))
				Expect(rows[1][0]).To(Equal("1"))
				Expect(rows[1][1]).To(Equal("О930ТР"))
				Expect(rows[1][6]).To(Equal("2026-07-02"))
				Expect(rows[1][7]).To(Equal("Иван"))
			})
		})

		When("the period has no cars", func() {
			It("returns ErrNothingToExport", func() {
				_, _, err := service.ExportXLSX(july)
				Expect(errors.Is(err, ErrNothingToExport)).To(BeTrue())
			})
		})
	})

	Describe("PhotoArchive", func() {
		When("the period has photos", func() {
			BeforeEach(func() {
				t0 := time.Date(2026, 7, 2, 9, 0, 0, 0, time.UTC)
				db.photos["p1"] = &Photo{ID: "p1", Date: "2026-07-02", Filename: "2026-07/p1.jpg", CreatedAt: t0}
				db.photos["p2"] = &Photo{ID: "p2", Date: "2026-07-02", Filename: "2026-07/p2.png", CreatedAt: t0.Add(time.Minute)}
				db.photos["p3"] = &Photo{ID: "p3", Date: "2026-07-05", Filename: "2026-07/p3.jpg", CreatedAt: t0}
				storage.files["2026-07/p1.jpg"] = []byte("one")
				storage.files["2026-07/p2.png"] = []byte("two")
			})

			It("should name the archive after the month", func() {
				_, filename, err := service.PhotoArchive(july)
				Expect(err).NotTo(HaveOccurred())
				Expect(filename).To(Equal("photos_2026_07.zip"))
			})

			It("should number the photos and note missing files", func() {
				data, _, err := service.PhotoArchive(july)
				Expect(err).NotTo(HaveOccurred())

				zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
				Expect(err).NotTo(HaveOccurred())
				names := []string{}
				contents := map[string]string{}
				for _, f := range zr.File {
					names = append(names, f.Name)
					rc, err := f.Open()
					Expect(err).NotTo(HaveOccurred())
					body, err := io.ReadAll(rc)
					Expect(err).NotTo(HaveOccurred())
					rc.Close()
					contents[f.Name] = string(body)
				}

				Expect(names).To(Equal([]string{"photo_001.jpg", "photo_002.png", "photo_003_p3.txt"}))
				Expect(contents["photo_002.png"]).To(Equal("two"))
				Expect(contents["photo_003_p3.txt"]).To(ContainSubstring("Фото с ID: p3"))
			})
		})

		When("the period has no photos", func() {
			It("returns ErrNothingToExport", func() {
				_, _, err := service.PhotoArchive(july)
				Expect(errors.Is(err, ErrNothingToExport)).To(BeTrue())
			})
		})
	})
})

var _ = Describe("writeRow", func() {
	var f *excelize.File

	BeforeEach(func() {
		f = excelize.NewFile()
	})

	AfterEach(func() {
		f.Close()
	})

	It("should fill the row from column A", func() {
		Expect(writeRow(f, "Sheet1", 2, []any{1, "О930ТР"}, 0)).To(Succeed())
		value, err := f.GetCellValue("Sheet1", "B2")
		Expect(err).NotTo(HaveOccurred())
		Expect(value).To(Equal("О930ТР"))
	})

	When("the sheet does not exist", func() {
		It("returns the error", func() {
			Expect(writeRow(f, "missing", 1, []any{"№"}, 0)).NotTo(Succeed())
		})
	})

	When("the row is out of range", func() {
		It("returns the error", func() {
			Expect(writeRow(f, "Sheet1", 0, []any{"№"}, 0)).NotTo(Succeed())
		})
	})
})
