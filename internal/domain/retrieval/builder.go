// Package retrieval maps a search library id to the Azure AI Search data source
// parameters used by retrieval-augmented completions. It performs no I/O after
// construction and is safe for concurrent use.
package retrieval

const (
	DataSourceType = "azure_search"

	semanticConfiguration = "default"
	queryType             = "vector_semantic_hybrid"
	strictness            = 2
	authTypeAPIKey        = "api_key"
	embeddingTypeName     = "deployment_name"

	// DefaultEmbeddingDeployment is the embeddings deployment used for vector queries.
	DefaultEmbeddingDeployment = "embeddings"
)

var includeContexts = []string{"citations", "intent", "all_retrieved_documents"}

// Authentication is the search service credential block.
type Authentication struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// EmbeddingDependency names the deployment that vectorizes the query.
type EmbeddingDependency struct {
	Type           string `json:"type"`
	DeploymentName string `json:"deployment_name"`
}

// Config is the parameters object of an azure_search data source.
type Config struct {
	Endpoint              string              `json:"endpoint"`
	IndexName             string              `json:"index_name"`
	SemanticConfiguration string              `json:"semantic_configuration"`
	QueryType             string              `json:"query_type"`
	FieldsMapping         FieldsMapping       `json:"fields_mapping"`
	IncludeContexts       []string            `json:"include_contexts"`
	InScope               bool                `json:"in_scope"`
	RoleInformation       string              `json:"role_information"`
	Filter                *string             `json:"filter"`
	Strictness            int                 `json:"strictness"`
	TopNDocuments         int                 `json:"top_n_documents"`
	Authentication        Authentication      `json:"authentication"`
	EmbeddingDependency   EmbeddingDependency `json:"embedding_dependency"`
}

// Settings are the deployment-wide values shared by every library.
type Settings struct {
	Endpoint            string
	Key                 string
	EmbeddingDeployment string
}

// Builder produces Configs from a Catalog.
type Builder struct {
	catalog  *Catalog
	settings Settings
}

func NewBuilder(catalog *Catalog, settings Settings) *Builder {
	if settings.EmbeddingDeployment == "" {
		settings.EmbeddingDeployment = DefaultEmbeddingDeployment
	}
	return &Builder{catalog: catalog, settings: settings}
}

// Build returns the data source parameters for library. Unknown libraries get
// the default family; library is always used as the index name.
func (b *Builder) Build(library, roleInformation string) Config {
	family := b.catalog.Family(library)

	fields := family.Fields
	fields.ContentFields = append([]string(nil), fields.ContentFields...)
	fields.VectorFields = append([]string(nil), fields.VectorFields...)

	return Config{
		Endpoint:              b.settings.Endpoint,
		IndexName:             library,
		SemanticConfiguration: semanticConfiguration,
		QueryType:             queryType,
		FieldsMapping:         fields,
		IncludeContexts:       append([]string(nil), includeContexts...),
		InScope:               true,
		RoleInformation:       roleInformation,
		Strictness:            strictness,
		TopNDocuments:         family.TopNDocuments,
		Authentication:        Authentication{Type: authTypeAPIKey, Key: b.settings.Key},
		EmbeddingDependency: EmbeddingDependency{
			Type:           embeddingTypeName,
			DeploymentName: b.settings.EmbeddingDeployment,
		},
	}
}

// Configured reports whether the search endpoint and key are set.
func (b *Builder) Configured() bool {
	return b.settings.Endpoint != "" && b.settings.Key != ""
}
