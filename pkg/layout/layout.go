// Package layout defines the canonical on-disk layout of a benchtop
// sequencing run and classifies source files into it.
package layout

import (
	"path"
	"path/filepath"
	"strings"
)

// 📂 Canonical subdirectory names, bit-exact and case-sensitive.
const (
	ConfigDir          = "Config"
	DataDir            = "Data"
	BaseCallsDir       = "Data/Intensities/BaseCalls"
	ImagesDir          = "Images"
	InterOpDir         = "InterOp"
	LogsDir            = "Logs"
	RecipesDir         = "Recipes"
	ThumbnailImagesDir = "Thumbnail_Images"
)

// SkeletonDirs lists every directory created under a destination run root,
// in creation order. BaseCallsDir implies its parents.
func SkeletonDirs() []string {
	return []string{
		ConfigDir,
		BaseCallsDir,
		ImagesDir,
		InterOpDir,
		LogsDir,
		RecipesDir,
		ThumbnailImagesDir,
	}
}

// 🏷️ TargetCategory is the classification of a source file relative to a run
// root. Classification is pure: it depends only on the path shape.
type TargetCategory int

const (
	CategoryUnclassified TargetCategory = iota
	CategoryConfig
	CategoryData
	CategoryImages
	CategoryInterOp
	CategoryLogs
	CategoryRecipes
	CategoryThumbnailImages
)

// String returns the category name as used in logs and reports.
func (c TargetCategory) String() string {
	switch c {
	case CategoryConfig:
		return "Config"
	case CategoryData:
		return "Data"
	case CategoryImages:
		return "Images"
	case CategoryInterOp:
		return "InterOp"
	case CategoryLogs:
		return "Logs"
	case CategoryRecipes:
		return "Recipes"
	case CategoryThumbnailImages:
		return "Thumbnail_Images"
	default:
		return "Unclassified"
	}
}

// Dir returns the destination subdirectory for the category, relative to the
// run root. Unclassified files live at the run root itself.
func (c TargetCategory) Dir() string {
	switch c {
	case CategoryData:
		return BaseCallsDir
	case CategoryUnclassified:
		return ""
	default:
		return c.String()
	}
}

// topLevelCategories maps a first path component to its category.
var topLevelCategories = map[string]TargetCategory{
	ConfigDir:          CategoryConfig,
	ImagesDir:          CategoryImages,
	InterOpDir:         CategoryInterOp,
	LogsDir:            CategoryLogs,
	RecipesDir:         CategoryRecipes,
	ThumbnailImagesDir: CategoryThumbnailImages,
}

// readDataExtensions are file suffixes that mark sequence read data wherever
// it appears in the source tree (BaseMount nests reads under Sample dirs).
var readDataExtensions = []string{
	".fastq.gz",
	".fastq",
	".fq.gz",
	".bcl",
	".bcl.gz",
	".cbcl",
}

// 🔍 Classify maps a path relative to a run root to its target category. It
// is total: every input yields exactly one category and never an error.
func Classify(relPath string) TargetCategory {
	rel := path.Clean(filepath.ToSlash(relPath))
	if rel == "." || rel == "/" || rel == "" {
		return CategoryUnclassified
	}
	rel = strings.TrimPrefix(rel, "/")
	parts := strings.Split(rel, "/")

	if c, ok := topLevelCategories[parts[0]]; ok {
		return c
	}
	if parts[0] == DataDir {
		return CategoryData
	}

	// Read data may be nested anywhere (Sample.X/Files/... on BaseMount),
	// recognized by an Intensities/BaseCalls segment or a read extension.
	for _, p := range parts[:len(parts)-1] {
		if p == "Intensities" || p == "BaseCalls" {
			return CategoryData
		}
	}
	name := strings.ToLower(parts[len(parts)-1])
	for _, ext := range readDataExtensions {
		if strings.HasSuffix(name, ext) {
			return CategoryData
		}
	}

	return CategoryUnclassified
}

// DestinationPath computes the copy destination for a classified file,
// relative to the destination run root.
//
//   - Data keeps any structure beneath a BaseCalls segment; everything else
//     classified as Data lands flat in Data/Intensities/BaseCalls.
//   - Flat categories receive just the filename.
//   - Unclassified files keep their full relative path under the run root so
//     nothing is dropped and nested names cannot collide.
func DestinationPath(relPath string, category TargetCategory) string {
	rel := strings.TrimPrefix(path.Clean(filepath.ToSlash(relPath)), "/")
	switch category {
	case CategoryData:
		return path.Join(BaseCallsDir, baseCallsRemainder(rel))
	case CategoryUnclassified:
		return rel
	default:
		return path.Join(category.Dir(), path.Base(rel))
	}
}

// baseCallsRemainder preserves nesting beneath a BaseCalls segment, falling
// back to the bare filename for reads found outside one.
func baseCallsRemainder(rel string) string {
	parts := strings.Split(rel, "/")
	for i, p := range parts {
		if p == "BaseCalls" && i < len(parts)-1 {
			return path.Join(parts[i+1:]...)
		}
	}
	return path.Base(rel)
}
