// Package textchunk splits extracted document text into overlapping
// word windows for retrieval and classifies documents by industry
// keyword frequency.
package textchunk

import "strings"

const (
	DefaultChunkSize    = 750
	DefaultChunkOverlap = 100
)

// Page is one page of extracted text.
type Page struct {
	Number int
	Text   string
}

// Chunk is a window of chunkSize words from a single page. Seq is
// monotonic across the whole document.
type Chunk struct {
	Seq       int
	Page      int
	StartWord int
	EndWord   int
	WordCount int
	Text      string
}

// Split cuts each page into windows of chunkSize words, advancing by
// max(1, chunkSize-overlap) so consecutive chunks share overlap words.
// Windows never span page boundaries.
func Split(pages []Page, chunkSize, overlap int) []Chunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	step := chunkSize - overlap
	if step < 1 {
		step = 1
	}

	var chunks []Chunk
	seq := 0
	for _, page := range pages {
		words := strings.Fields(page.Text)
		for i := 0; i < len(words); i += step {
			end := i + chunkSize
			if end > len(words) {
				end = len(words)
			}
			window := words[i:end]
			chunks = append(chunks, Chunk{
				Seq:       seq,
				Page:      page.Number,
				StartWord: i,
				EndWord:   end,
				WordCount: len(window),
				Text:      strings.Join(window, " "),
			})
			seq++
		}
	}
	return chunks
}

// WordCount returns the total number of words across all pages.
func WordCount(pages []Page) int {
	total := 0
	for _, page := range pages {
		total += len(strings.Fields(page.Text))
	}
	return total
}

// IndustryGeneral is returned when no industry reaches the keyword
// threshold.
const IndustryGeneral = "general"

// industry keyword sets, scored by substring containment
var industryKeywords = []struct {
	name     string
	keywords []string
}{
	{"medical", []string{"patient", "diagnosis", "treatment", "medical", "hospital", "doctor", "medicine", "clinical", "therapy", "healthcare"}},
	{"finance", []string{"investment", "financial", "loan", "bank", "credit", "portfolio", "revenue", "profit", "accounting", "fiscal"}},
	{"retail", []string{"product", "customer", "sale", "price", "inventory", "retail", "shopping", "merchandise", "store", "brand"}},
	{"education", []string{"student", "course", "curriculum", "learning", "education", "academic", "university", "school", "teaching", "study"}},
	{"legal", []string{"contract", "legal", "court", "law", "agreement", "clause", "attorney", "litigation", "compliance", "regulation"}},
}

// minIndustryHits is the number of distinct keywords that must occur
// before an industry wins over "general".
const minIndustryHits = 3

// DetectIndustry scores each industry by how many of its keywords occur
// in the document text and returns the best match, or IndustryGeneral
// when no industry reaches the threshold. Ties keep the earlier
// industry in the list.
func DetectIndustry(pages []Page) string {
	var b strings.Builder
	for _, page := range pages {
		b.WriteString(strings.ToLower(page.Text))
		b.WriteByte(' ')
	}
	fullText := b.String()

	best := IndustryGeneral
	bestScore := 0
	for _, ind := range industryKeywords {
		score := 0
		for _, kw := range ind.keywords {
			if strings.Contains(fullText, kw) {
				score++
			}
		}
		if score > bestScore {
			best = ind.name
			bestScore = score
		}
	}

	if bestScore < minIndustryHits {
		return IndustryGeneral
	}
	return best
}
