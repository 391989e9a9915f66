package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for follow documents.
//
// Names and logins use the simple analyzer (lowercase, no stemming) since
// they are handles, not prose. Stream titles get English stemming. Tag names
// are indexed both as keywords for exact filtering and as text.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = simple.Name

	docMapping := bleve.NewDocumentMapping()

	// --- Text fields ---

	loginFieldMapping := bleve.NewTextFieldMapping()
	loginFieldMapping.Analyzer = simple.Name
	loginFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("login", loginFieldMapping)

	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = simple.Name
	nameFieldMapping.Store = true
	nameFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("display_name", nameFieldMapping)

	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = en.AnalyzerName
	titleFieldMapping.Store = true
	titleFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("title", titleFieldMapping)

	gameFieldMapping := bleve.NewTextFieldMapping()
	gameFieldMapping.Analyzer = simple.Name
	gameFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("game", gameFieldMapping)

	tagsFieldMapping := bleve.NewTextFieldMapping()
	tagsFieldMapping.Analyzer = simple.Name
	tagsFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("tags", tagsFieldMapping)

	// --- Keyword fields ---

	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	idFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	// --- Filters and sorting ---

	liveFieldMapping := bleve.NewBooleanFieldMapping()
	liveFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("is_live", liveFieldMapping)

	viewersFieldMapping := bleve.NewNumericFieldMapping()
	viewersFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("viewers", viewersFieldMapping)

	followedFieldMapping := bleve.NewNumericFieldMapping()
	docMapping.AddFieldMappingsAt("followed_at", followedFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
