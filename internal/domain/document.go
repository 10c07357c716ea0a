package domain

// Index document field names. They double as the JSON keys of the indexed source.
const (
	FieldPRNumber    = "pr_number"
	FieldTitle       = "title"
	FieldBody        = "body"
	FieldTitleVector = "title_vector"
)

// IndexDocument is a PullRequest enriched with the embedding of its title,
// ready to be written to the search index.
type IndexDocument struct {
	PRNumber    string    `json:"pr_number"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	TitleVector []float32 `json:"title_vector"`
}

// NewIndexDocument builds the index representation of pr with the given title vector.
func NewIndexDocument(pr PullRequest, vector []float32) IndexDocument {
	return IndexDocument{
		PRNumber:    pr.ID,
		Title:       pr.Title,
		Body:        pr.Body,
		TitleVector: vector,
	}
}
