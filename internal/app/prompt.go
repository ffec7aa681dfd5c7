package app

import (
	"fmt"
	"strings"

	"corpusqa/internal/ai"
	"corpusqa/internal/model"
)

const promptInstruction = "You are a research assistant. Answer the question using only the numbered sources below. " +
	"Cite every claim with the source number in brackets, e.g. [1]. When a figure supports the answer, " +
	"mention its figure reference id. If the sources do not contain the answer, say \"I don't know\". " +
	"Do not make up facts."

// buildPrompt renders the fused results into the grounded prompt and the
// sources block returned to the caller. Documents are numbered [1..n];
// figures carry their figure-reference ids.
func buildPrompt(query string, results []model.SearchResult) ([]ai.ChatMessage, model.Sources) {
	var sources model.Sources
	var lines []string

	docIndex := 0
	figIndex := 0
	for _, res := range results {
		if res.ResultType == model.ResultTypeFigure {
			figIndex++
			ref := figureRef(figIndex, res)
			sources.Figures = append(sources.Figures, ref)
			lines = append(lines, fmt.Sprintf("[%s] %s: %s", ref.Citation, describeFigure(ref), res.Payload.Str("caption")))
			continue
		}
		docIndex++
		ref := sourceRef(docIndex, res)
		sources.Documents = append(sources.Documents, ref)
		lines = append(lines, fmt.Sprintf("[%d] %s: %s", docIndex, ref.Citation, res.Payload.Str("content")))
	}
	if sources.Documents == nil {
		sources.Documents = []model.SourceRef{}
	}
	if sources.Figures == nil {
		sources.Figures = []model.FigureRef{}
	}

	userContent := "Sources:\n" + strings.Join(lines, "\n") +
		"\n\nQuestion: " + query + "\n\nAnswer:"

	messages := []ai.ChatMessage{
		{Role: "system", Content: promptInstruction},
		{Role: "user", Content: userContent},
	}
	return messages, sources
}

func sourceRef(index int, res model.SearchResult) model.SourceRef {
	p := res.Payload
	return model.SourceRef{
		Index:    index,
		ChunkID:  res.ID,
		Title:    p.Str("title"),
		DocType:  p.Str("doc_type"),
		Author:   p.Str("author"),
		Year:     p.Int("year"),
		Chapter:  p.Str("chapter"),
		Source:   p.Str("source"),
		Citation: documentCitation(p),
		Score:    res.RankingScore(),
	}
}

func figureRef(index int, res model.SearchResult) model.FigureRef {
	p := res.Payload
	figureID := p.Str("figure_id")
	if figureID == "" {
		figureID = res.ID
	}
	return model.FigureRef{
		Index:      index,
		FigureID:   figureID,
		FigureType: p.Str("figure_type"),
		Caption:    p.Str("caption"),
		PageNumber: p.Int("page_number"),
		FilePath:   p.Str("file_path"),
		Citation:   fmt.Sprintf("F%d", index),
	}
}

// documentCitation synthesizes a human-readable citation from whatever
// metadata the chunk carries.
func documentCitation(p model.Payload) string {
	var parts []string
	if title := p.Str("title"); title != "" {
		parts = append(parts, title)
	}
	if docType := p.Str("doc_type"); docType != "" {
		parts = append(parts, docType)
	}
	if author := p.Str("author"); author != "" {
		parts = append(parts, author)
	}
	if year := p.Int("year"); year > 0 {
		parts = append(parts, fmt.Sprintf("%d", year))
	}
	if chapter := p.Str("chapter"); chapter != "" {
		parts = append(parts, "ch. "+chapter)
	}
	if len(parts) == 0 {
		if source := p.Str("source"); source != "" {
			return source
		}
		return "untitled source"
	}
	return strings.Join(parts, ", ")
}

func describeFigure(ref model.FigureRef) string {
	desc := "Figure " + ref.FigureID
	if ref.FigureType != "" {
		desc += " (" + ref.FigureType + ")"
	}
	if ref.PageNumber > 0 {
		desc += fmt.Sprintf(", p. %d", ref.PageNumber)
	}
	return desc
}

// estimateTokens approximates token usage from word counts, used when the
// provider reports no exact numbers.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return words * 4 / 3
}
