package trigger

// Stop words are layered: plain English, programming noise that appears in
// nearly every technical note, and artifact words specific to the memory
// document genre. A token must survive all three layers to become a
// trigger candidate.

var englishStopwords = makeSet([]string{
	"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to",
	"of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were",
	"be", "been", "being", "it", "its", "this", "that", "these", "those",
	"from", "up", "down", "over", "under", "again", "further", "than", "so",
	"such", "into", "about", "between", "through", "during", "before",
	"after", "above", "below", "out", "off", "own", "same", "too", "very",
	"can", "cannot", "will", "would", "could", "should", "just", "now",
	"not", "no", "nor", "only", "both", "each", "few", "more", "most",
	"other", "some", "any", "all", "does", "did", "done", "doing", "have",
	"has", "had", "having", "what", "when", "where", "which", "who", "whom",
	"why", "how", "there", "here", "they", "them", "their", "you", "your",
	"our", "ours", "his", "her", "him", "she", "was", "also", "get", "gets",
	"got", "use", "used", "using", "via", "per", "etc", "one", "two", "new",
})

var programmingNoiseWords = makeSet([]string{
	"function", "functions", "method", "methods", "variable", "variables",
	"value", "values", "code", "file", "files", "line", "lines", "type",
	"types", "class", "classes", "object", "objects", "string", "number",
	"data", "list", "item", "items", "return", "returns", "call", "calls",
	"called", "calling", "add", "added", "adding", "remove", "removed",
	"create", "created", "creating", "update", "updated", "updating",
	"delete", "deleted", "set", "sets", "setting", "make", "makes", "made",
	"run", "runs", "running", "work", "works", "working", "need", "needs",
	"needed", "change", "changes", "changed", "fix", "fixed", "fixes",
	"issue", "issues", "problem", "problems", "error", "errors", "test",
	"tests", "testing", "example", "examples", "implementation", "implement",
	"implemented", "logic", "default", "defaults", "param", "params",
	"parameter", "parameters", "argument", "arguments", "result", "results",
})

var artifactWords = makeSet([]string{
	"summary", "overview", "note", "notes", "section", "sections", "detail",
	"details", "context", "description", "memory", "memories", "record",
	"records", "document", "documents", "spec", "specs", "folder", "task",
	"tasks", "todo", "step", "steps", "important", "key", "decision",
	"decisions", "learnings", "findings", "background",
})

func makeSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func isStopword(token string) bool {
	if _, ok := englishStopwords[token]; ok {
		return true
	}
	if _, ok := programmingNoiseWords[token]; ok {
		return true
	}
	_, ok := artifactWords[token]
	return ok
}
