package report

import (
	"errors"
	"math"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// describeDB runs the same behaviour checks against every DB driver
func describeDB(open func(path string) (DB, error)) {
	var (
		dbPath    string
		db        DB
		createdAt time.Time
	)

	BeforeEach(func() {
		dbPath = filepath.Join(GinkgoT().TempDir(), "test.db")
		var err error
		db, err = open(dbPath)
		Expect(err).NotTo(HaveOccurred())
		createdAt = time.Date(2026, 7, 3, 18, 0, 0, 0, time.UTC)
		Expect(db.AddUser(&User{ID: "42", Name: "Иван", CreatedAt: createdAt})).To(Succeed())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	saveReport := func(id, date string, cars ...Car) *WorkReport {
		r := &WorkReport{ID: id, UserID: "42", Date: date, Cars: cars, CreatedAt: createdAt}
		Expect(db.SaveReports(r)).To(Succeed())
		return r
	}

	Describe("AddUser", func() {
		It("should store the user", func() {
			user, err := db.GetUser("42")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Name).To(Equal("Иван"))
			Expect(user.IsAdmin).To(BeFalse())
			Expect(user.CreatedAt).To(BeTemporally("==", createdAt))
		})

		It("should ignore a second insert", func() {
			Expect(db.AddUser(&User{ID: "42", Name: "Пётр", CreatedAt: createdAt})).To(Succeed())
			user, err := db.GetUser("42")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Name).To(Equal("Иван"))
		})
	})

	Describe("GetUser", func() {
		When("the user does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetUser("missing")
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})
	})

	Describe("SetAdmin", func() {
		It("should flag the user", func() {
			Expect(db.SetAdmin("42")).To(Succeed())
			user, err := db.GetUser("42")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.IsAdmin).To(BeTrue())
		})

		When("the user does not exist", func() {
			It("returns ErrNotFound", func() {
				Expect(errors.Is(db.SetAdmin("missing"), ErrNotFound)).To(BeTrue())
			})
		})
	})

	Describe("SaveReports", func() {
		It("should keep the cars in order", func() {
			saveReport("r1", "2026-07-02",
				Car{Plate: "О930ТР", Description: "переднее крыло", Area: 1.2, Cost: 432, Date: "2026-07-02"},
				Car{Plate: "ВН437", Description: "капот, латки", Area: 1.5, Cost: 540, LaborCost: 500, Date: "2026-07-02"},
			)

			report, err := db.GetReport("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(report.UserID).To(Equal("42"))
			Expect(report.Date).To(Equal("2026-07-02"))
			Expect(report.Cars).To(HaveLen(2))
			Expect(report.Cars[0].Plate).To(Equal("О930ТР"))
			Expect(report.Cars[1]).To(Equal(Car{Plate: "ВН437", Description: "капот, латки", Area: 1.5, Cost: 540, LaborCost: 500, Date: "2026-07-02"}))
		})

		It("should replace the cars on a second save", func() {
			saveReport("r1", "2026-07-02", Car{Plate: "О930ТР", Description: "крыло"})
			saveReport("r1", "2026-07-02", Car{Plate: "ВН437", Description: "капот"})

			report, err := db.GetReport("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Cars).To(HaveLen(1))
			Expect(report.Cars[0].Plate).To(Equal("ВН437"))
		})

		It("should move a report whose date changed", func() {
			saveReport("r1", "2026-07-02", Car{Plate: "О930ТР", Description: "крыло"})
			saveReport("r1", "2026-07-05", Car{Plate: "О930ТР", Description: "крыло"})

			old, err := db.ListReports("2026-07-02", "2026-07-02")
			Expect(err).NotTo(HaveOccurred())
			Expect(old).To(BeEmpty())

			moved, err := db.ListReports("2026-07-05", "2026-07-05")
			Expect(err).NotTo(HaveOccurred())
			Expect(moved).To(HaveLen(1))
		})

		It("should store several reports together", func() {
			Expect(db.SaveReports(
				&WorkReport{ID: "r1", UserID: "42", Date: "2026-07-02", CreatedAt: createdAt},
				&WorkReport{ID: "r2", UserID: "42", Date: "2026-07-03", CreatedAt: createdAt},
			)).To(Succeed())

			reports, err := db.ListReports("2026-07-01", "2026-07-31")
			Expect(err).NotTo(HaveOccurred())
			Expect(reports).To(HaveLen(2))
		})

		When("a later report cannot be stored", func() {
			It("should store none of them", func() {
				err := db.SaveReports(
					&WorkReport{ID: "r1", UserID: "42", Date: "2026-07-02", CreatedAt: createdAt},
					&WorkReport{ID: "r2", UserID: "nobody", Date: "2026-07-03", CreatedAt: createdAt,
						Cars: []Car{{Plate: "ВН437", Area: math.NaN()}}},
				)
				Expect(err).To(HaveOccurred())

				_, err = db.GetReport("r1")
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})
	})

	Describe("GetReport", func() {
		When("the report does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetReport("missing")
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})
	})

	Describe("ListReports", func() {
		BeforeEach(func() {
			saveReport("june", "2026-06-30", Car{Plate: "А111АА", Description: "крыло"})
			saveReport("first", "2026-07-01", Car{Plate: "В222ВВ", Description: "капот"})
			saveReport("last", "2026-07-31", Car{Plate: "С333СС", Description: "бампер"})
			saveReport("august", "2026-08-01", Car{Plate: "Е444ЕЕ", Description: "крыша"})
		})

		It("should include both bounds", func() {
			reports, err := db.ListReports("2026-07-01", "2026-07-31")
			Expect(err).NotTo(HaveOccurred())
			ids := []string{}
			for _, r := range reports {
				ids = append(ids, r.ID)
			}
			Expect(ids).To(ConsistOf("first", "last"))
		})

		It("should load the cars", func() {
			reports, err := db.ListReports("2026-07-31", "2026-07-31")
			Expect(err).NotTo(HaveOccurred())
			Expect(reports).To(HaveLen(1))
			Expect(reports[0].Cars).To(HaveLen(1))
			Expect(reports[0].Cars[0].Plate).To(Equal("С333СС"))
		})

		It("should return an empty list for an empty range", func() {
			reports, err := db.ListReports("2025-01-01", "2025-01-31")
			Expect(err).NotTo(HaveOccurred())
			Expect(reports).NotTo(BeNil())
			Expect(reports).To(BeEmpty())
		})
	})

	Describe("Photos", func() {
		BeforeEach(func() {
			saveReport("r1", "2026-07-02", Car{Plate: "О930ТР", Description: "крыло"})
			saveReport("r2", "2026-08-01", Car{Plate: "ВН437", Description: "капот"})
			Expect(db.SavePhoto(&Photo{ID: "p1", ReportID: "r1", UserID: "42", Date: "2026-07-02", Filename: "2026-07/p1.jpg", ContentType: "image/jpeg", CreatedAt: createdAt})).To(Succeed())
			Expect(db.SavePhoto(&Photo{ID: "p2", ReportID: "r2", UserID: "42", Date: "2026-08-01", Filename: "2026-08/p2.png", ContentType: "image/png", CreatedAt: createdAt})).To(Succeed())
		})

		It("should get a photo by ID", func() {
			p, err := db.GetPhoto("p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.ReportID).To(Equal("r1"))
			Expect(p.Filename).To(Equal("2026-07/p1.jpg"))
			Expect(p.ContentType).To(Equal("image/jpeg"))
		})

		It("should list photos within the range", func() {
			photos, err := db.ListPhotos("2026-07-01", "2026-07-31")
			Expect(err).NotTo(HaveOccurred())
			Expect(photos).To(HaveLen(1))
			Expect(photos[0].ID).To(Equal("p1"))
		})

		When("the photo does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetPhoto("missing")
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})
	})

	Describe("Close", func() {
		It("should persist data across reopen", func() {
			saveReport("r1", "2026-07-02", Car{Plate: "О930ТР", Description: "крыло"})
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = open(dbPath)
			Expect(err).NotTo(HaveOccurred())
			report, err := db.GetReport("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Cars).To(HaveLen(1))
		})
	})
}

var _ = Describe("BoltDB", func() {
	describeDB(func(path string) (DB, error) {
		return NewBoltDB(path)
	})
})

var _ = Describe("SQLiteDB", func() {
	describeDB(func(path string) (DB, error) {
		return NewSQLiteDB(path)
	})

	It("should enforce foreign keys", func() {
		db, err := NewSQLiteDB(filepath.Join(GinkgoT().TempDir(), "fk.db"))
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		err = db.SaveReports(&WorkReport{ID: "r1", UserID: "nobody", Date: "2026-07-02", CreatedAt: time.Now()})
		Expect(err).To(HaveOccurred())
	})
})
