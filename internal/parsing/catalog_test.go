package parsing

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LoadCatalog", func() {
	var (
		dir     string
		path    string
		catalog *Catalog
		err     error
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	JustBeforeEach(func() {
		catalog, err = LoadCatalog(path)
	})

	When("the JSON document is complete", func() {
		BeforeEach(func() {
			path = writeFile(dir, "materials.json", `{
				"elements": {" Переднее   КРЫЛО ": 1.2},
				"labor": {"Латки": 500},
				"fixed": {"ПОЛИРОВКА": 1000},
				"pricing": {"areaCostPerSquareMeter": 420}
			}`)
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should normalize every key", func() {
			Expect(catalog.Elements).To(Equal(map[string]float64{"переднее крыло": 1.2}))
			Expect(catalog.Labor).To(Equal(map[string]float64{"латки": 500}))
			Expect(catalog.Fixed).To(Equal(map[string]float64{"полировка": 1000}))
		})

		It("should read the price per area", func() {
			Expect(catalog.PricePerArea).To(Equal(420.0))
		})
	})

	When("the pricing section is absent", func() {
		BeforeEach(func() {
			path = writeFile(dir, "materials.json", `{"elements": {"крыло": 1}}`)
		})

		It("should default the price per area", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(catalog.PricePerArea).To(Equal(DefaultPricePerArea))
		})

		It("should return empty tables for missing sections", func() {
			Expect(catalog.Labor).To(BeEmpty())
			Expect(catalog.Fixed).To(BeEmpty())
		})
	})

	When("the pricing uses the legacy key", func() {
		BeforeEach(func() {
			path = writeFile(dir, "materials.json", `{"pricing": {"area_cost_per_m2": 380}}`)
		})

		It("should read it", func() {
			Expect(catalog.PricePerArea).To(Equal(380.0))
		})
	})

	When("the document is YAML", func() {
		BeforeEach(func() {
			path = writeFile(dir, "materials.yaml", "elements:\n  Капот: 1.5\nlabor:\n  латки: 250\npricing:\n  areaCostPerSquareMeter: 300\n")
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should decode it", func() {
			Expect(catalog.Elements).To(HaveKeyWithValue("капот", 1.5))
			Expect(catalog.Labor).To(HaveKeyWithValue("латки", 250.0))
			Expect(catalog.PricePerArea).To(Equal(300.0))
		})
	})

	When("the file does not exist", func() {
		BeforeEach(func() {
			path = filepath.Join(dir, "missing.json")
		})

		It("returns a CatalogLoadError", func() {
			var loadErr *CatalogLoadError
			Expect(errors.As(err, &loadErr)).To(BeTrue())
			Expect(loadErr.Path).To(Equal(path))
		})

		It("should wrap the underlying error", func() {
			Expect(errors.Is(err, fs.ErrNotExist)).To(BeTrue())
		})
	})

	When("the document is malformed", func() {
		BeforeEach(func() {
			path = writeFile(dir, "materials.json", `{"elements": {"крыло": "много"}}`)
		})

		It("returns a CatalogLoadError", func() {
			var loadErr *CatalogLoadError
			Expect(errors.As(err, &loadErr)).To(BeTrue())
		})
	})

	When("a value is negative", func() {
		BeforeEach(func() {
			path = writeFile(dir, "materials.json", `{"labor": {"латки": -5}}`)
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("negative value"))
		})
	})

	When("the price is zero", func() {
		BeforeEach(func() {
			path = writeFile(dir, "materials.json", `{"pricing": {"areaCostPerSquareMeter": 0}}`)
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("CachedCatalog", func() {
	var (
		path   string
		cached *CachedCatalog
	)

	BeforeEach(func() {
		path = writeFile(GinkgoT().TempDir(), "materials.json", `{"elements": {"крыло": 1}}`)
		cached = NewCachedCatalog(path)
	})

	It("should return the memoized catalog while the file is unchanged", func() {
		first, err := cached.Load()
		Expect(err).NotTo(HaveOccurred())
		second, err := cached.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(BeIdenticalTo(first))
	})

	It("should reload after the file changes", func() {
		_, err := cached.Load()
		Expect(err).NotTo(HaveOccurred())

		Expect(os.WriteFile(path, []byte(`{"elements": {"крыло": 2, "капот": 1}}`), 0644)).To(Succeed())
		later := time.Now().Add(time.Minute)
		Expect(os.Chtimes(path, later, later)).To(Succeed())

		cat, err := cached.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(cat.Elements).To(HaveKeyWithValue("крыло", 2.0))
	})

	It("should reload after Invalidate", func() {
		first, err := cached.Load()
		Expect(err).NotTo(HaveOccurred())
		cached.Invalidate()
		second, err := cached.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(second).NotTo(BeIdenticalTo(first))
	})

	It("returns a CatalogLoadError once the file is gone", func() {
		Expect(os.Remove(path)).To(Succeed())
		_, err := cached.Load()
		var loadErr *CatalogLoadError
		Expect(errors.As(err, &loadErr)).To(BeTrue())
	})
})
