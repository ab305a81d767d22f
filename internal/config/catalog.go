package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog lists the choices offered to users when generating shots and images.
type Catalog struct {
	Genres          []string `yaml:"genres" json:"genres"`
	Moods           []string `yaml:"moods" json:"moods"`
	DiffusionModels []string `yaml:"diffusion_models" json:"diffusion_models"`
	Languages       []string `yaml:"languages" json:"languages"`
}

func DefaultCatalog() Catalog {
	return Catalog{
		Genres: []string{"Drama", "Action", "Comedy", "Romance", "Sci-Fi", "Thriller", "Fantasy", "Horror"},
		Moods:  []string{"Tense", "Happy", "Melancholy", "Excited", "Calm", "Suspenseful", "Romantic"},
		DiffusionModels: []string{
			"CompVis/stable-diffusion-v1-4",
			"runwayml/stable-diffusion-v1-5",
			"dreamlike-art/dreamlike-photoreal-2.0",
		},
		Languages: []string{"English", "Telugu"},
	}
}

// LoadCatalog reads a YAML catalog from path. Sections missing from the file
// keep their default values. An empty path returns the defaults.
func LoadCatalog(path string) (Catalog, error) {
	cat := DefaultCatalog()
	if path == "" {
		return cat, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cat, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	var fromFile Catalog
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return cat, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	if len(fromFile.Genres) > 0 {
		cat.Genres = fromFile.Genres
	}
	if len(fromFile.Moods) > 0 {
		cat.Moods = fromFile.Moods
	}
	if len(fromFile.DiffusionModels) > 0 {
		cat.DiffusionModels = fromFile.DiffusionModels
	}
	if len(fromFile.Languages) > 0 {
		cat.Languages = fromFile.Languages
	}
	return cat, nil
}

// HasModel reports whether name is one of the catalog's diffusion models.
func (c Catalog) HasModel(name string) bool {
	for _, m := range c.DiffusionModels {
		if m == name {
			return true
		}
	}
	return false
}
