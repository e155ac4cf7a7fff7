package dueldto

// Question is a bank item as served to players. The answer stays server side.
type Question struct {
	ID           string   `json:"id"`
	Book         string   `json:"book,omitempty"`
	Question     string   `json:"question"`
	Choices      []string `json:"choices"`
	Hint         string   `json:"hint,omitempty"`
	ScriptureRef string   `json:"scripture_ref,omitempty"`
	Difficulty   string   `json:"difficulty,omitempty"`
}

type QuestionBatch struct {
	Questions []Question `json:"questions"`
}
