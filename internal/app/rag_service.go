package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"docuchat/internal/ai"
	"docuchat/internal/config"
	"docuchat/internal/model"
	"docuchat/internal/repository"
	"docuchat/internal/vectorindex"
)

const (
	minChunkChars     = 50
	defaultMaxSources = 5
	searchMultiplier  = 2
	snippetRunes      = 200
)

var ErrNotEnoughDocuments = errors.New("not enough documents")

// Fixed answers returned without calling a provider.
const (
	noInfoAnswer    = "I don't have enough relevant information in the uploaded documents to answer this question."
	noCompareAnswer = "I couldn't find relevant information in the provided documents to make a comparison."
)

// modeInstructions map a query mode to the assistant persona line that
// opens the prompt. Unknown modes fall back to standard.
var modeInstructions = map[string]string{
	"standard":  "You are an AI assistant that answers questions based on provided document content.",
	"industry":  "You are an AI assistant specializing in industry-specific document analysis.",
	"medical":   "You are an AI assistant with expertise in medical document analysis. Provide accurate, evidence-based responses.",
	"finance":   "You are an AI assistant with expertise in financial document analysis.",
	"retail":    "You are an AI assistant with expertise in retail and product documentation.",
	"education": "You are an AI assistant with expertise in educational content analysis.",
}

// AnswerGenerator produces an answer from a prompt via some chat provider.
type AnswerGenerator interface {
	Generate(ctx context.Context, input GenerateInput) (*GenerateOutput, error)
	StreamGenerate(ctx context.Context, input GenerateInput, onChunk func(string) error) (*GenerateOutput, error)
}

// QueryEmbedder turns a question into a vector for index search.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type RAGService struct {
	documentRepo *repository.DocumentRepository
	chunkRepo    *repository.ChunkRepository
	index        *vectorindex.Index
	generator    AnswerGenerator
	embedder     QueryEmbedder
	cfg          config.RAGConfig
}

func NewRAGService(
	documentRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	index *vectorindex.Index,
	generator AnswerGenerator,
	embedder QueryEmbedder,
	cfg config.RAGConfig,
) *RAGService {
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = defaultMaxSources
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = 0.3
	}
	if cfg.MaxContextWords <= 0 {
		cfg.MaxContextWords = 4000
	}
	return &RAGService{
		documentRepo: documentRepo,
		chunkRepo:    chunkRepo,
		index:        index,
		generator:    generator,
		embedder:     embedder,
		cfg:          cfg,
	}
}

type QueryInput struct {
	UserID      uint
	Question    string
	DocumentIDs []uint
	Mode        string
	MaxSources  int
	Provider    string
	Model       string
}

type QuerySource struct {
	DocumentID   uint    `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Page         int     `json:"page"`
	Snippet      string  `json:"snippet"`
	Relevance    float64 `json:"relevance"`
}

type QueryResult struct {
	Answer        string        `json:"answer"`
	Sources       []QuerySource `json:"sources"`
	Confidence    float64       `json:"confidence"`
	Mode          string        `json:"mode"`
	Provider      string        `json:"provider,omitempty"`
	Model         string        `json:"model,omitempty"`
	ContextChunks int           `json:"context_chunks"`
	PromptWords   int           `json:"prompt_words,omitempty"`
}

type CompareInput struct {
	UserID      uint
	Question    string
	DocumentIDs []uint
	Provider    string
	Model       string
}

type CompareResult struct {
	Answer            string        `json:"answer"`
	Sources           []QuerySource `json:"sources"`
	Confidence        float64       `json:"confidence"`
	Provider          string        `json:"provider,omitempty"`
	Model             string        `json:"model,omitempty"`
	DocumentsCompared int           `json:"documents_compared"`
	ContextChunks     int           `json:"context_chunks"`
}

type EngineStats struct {
	IndexVectors    int     `json:"index_vectors"`
	IndexDocuments  int     `json:"index_documents"`
	Dimension       int     `json:"dimension"`
	UserDocuments   int64   `json:"user_documents"`
	UserIndexed     int     `json:"user_indexed_documents"`
	UserChunks      int64   `json:"user_chunks"`
	MaxSources      int     `json:"max_sources"`
	MinScore        float64 `json:"min_score"`
	MaxContextWords int     `json:"max_context_words"`
}

// Query answers a question from the user's indexed documents: retrieve,
// filter, rank, build a grounded prompt, generate.
func (s *RAGService) Query(ctx context.Context, input QueryInput) (*QueryResult, error) {
	prep, err := s.prepare(ctx, input)
	if err != nil {
		return nil, err
	}
	if prep.noInfo {
		return prep.emptyResult(), nil
	}

	out, err := s.generator.Generate(ctx, GenerateInput{
		Provider:    input.Provider,
		Model:       input.Model,
		Messages:    []ai.ChatMessage{{Role: "user", Content: prep.prompt}},
		MaxTokens:   s.cfg.AnswerMaxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		return nil, err
	}
	return prep.result(out), nil
}

// QueryStream is Query with the answer streamed through onChunk. The fixed
// no-information answer is flushed as a single chunk.
func (s *RAGService) QueryStream(ctx context.Context, input QueryInput, onChunk func(string) error) (*QueryResult, error) {
	prep, err := s.prepare(ctx, input)
	if err != nil {
		return nil, err
	}
	if prep.noInfo {
		if err := onChunk(noInfoAnswer); err != nil {
			return nil, err
		}
		return prep.emptyResult(), nil
	}

	out, err := s.generator.StreamGenerate(ctx, GenerateInput{
		Provider:    input.Provider,
		Model:       input.Model,
		Messages:    []ai.ChatMessage{{Role: "user", Content: prep.prompt}},
		MaxTokens:   s.cfg.AnswerMaxTokens,
		Temperature: s.cfg.Temperature,
	}, onChunk)
	if err != nil {
		return nil, err
	}
	return prep.result(out), nil
}

// Compare contrasts what each scoped document says about the question.
func (s *RAGService) Compare(ctx context.Context, input CompareInput) (*CompareResult, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, ErrInvalidInput
	}

	scope, err := s.resolveScope(input.UserID, input.DocumentIDs)
	if err != nil {
		return nil, err
	}
	if len(scope) < 2 {
		return nil, ErrNotEnoughDocuments
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	var blocks []string
	var sources []QuerySource
	var scores []float64
	contextChunks := 0
	for _, doc := range scope {
		picked, err := s.searchDocument(queryVec, doc)
		if err != nil {
			return nil, err
		}

		lines := []string{fmt.Sprintf("--- Document %s ---", doc.Name)}
		if len(picked) == 0 {
			lines = append(lines, "No relevant content found.")
		}
		for _, sc := range picked {
			lines = append(lines, fmt.Sprintf("Page %d: %s", sc.chunk.Page, strings.TrimSpace(sc.chunk.Text)))
			sources = append(sources, sc.toSource(doc.Name))
			scores = append(scores, sc.score)
			contextChunks++
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}

	if contextChunks == 0 {
		return &CompareResult{
			Answer:            noCompareAnswer,
			Sources:           []QuerySource{},
			DocumentsCompared: len(scope),
		}, nil
	}

	prompt := comparePrompt(strings.Join(blocks, "\n\n"), question)
	out, err := s.generator.Generate(ctx, GenerateInput{
		Provider:    input.Provider,
		Model:       input.Model,
		Messages:    []ai.ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   s.cfg.CompareMaxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		return nil, err
	}

	return &CompareResult{
		Answer:            strings.TrimSpace(out.Answer),
		Sources:           sources,
		Confidence:        confidence(scores),
		Provider:          out.Provider,
		Model:             out.Model,
		DocumentsCompared: len(scope),
		ContextChunks:     contextChunks,
	}, nil
}

// Stats reports index state, the user's corpus size and the engine knobs.
func (s *RAGService) Stats(userID uint) (*EngineStats, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}

	indexStats := s.index.Stats()
	total, err := s.documentRepo.CountByUserID(userID)
	if err != nil {
		return nil, err
	}
	indexed, err := s.documentRepo.ListIndexedByUserID(userID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(indexed))
	for _, doc := range indexed {
		ids = append(ids, doc.ID)
	}
	chunks, err := s.chunkRepo.CountByDocumentIDs(ids)
	if err != nil {
		return nil, err
	}

	return &EngineStats{
		IndexVectors:    indexStats.Vectors,
		IndexDocuments:  indexStats.Documents,
		Dimension:       indexStats.Dimension,
		UserDocuments:   total,
		UserIndexed:     len(indexed),
		UserChunks:      chunks,
		MaxSources:      s.cfg.MaxSources,
		MinScore:        s.cfg.MinScore,
		MaxContextWords: s.cfg.MaxContextWords,
	}, nil
}

// scoredChunk pairs a retrieved chunk with its similarity and heuristic
// quality scores.
type scoredChunk struct {
	chunk   model.Chunk
	docName string
	score   float64
	quality float64
}

func (sc scoredChunk) rank() float64 {
	return 0.7*sc.score + 0.3*sc.quality
}

func (sc scoredChunk) toSource(docName string) QuerySource {
	return QuerySource{
		DocumentID:   sc.chunk.DocumentID,
		DocumentName: docName,
		Page:         sc.chunk.Page,
		Snippet:      snippet(sc.chunk.Text),
		Relevance:    round3(sc.score),
	}
}

// preparedQuery carries everything the generation step needs.
type preparedQuery struct {
	mode        string
	prompt      string
	promptWords int
	picked      []scoredChunk
	docNames    map[uint]string
	noInfo      bool
}

func (p *preparedQuery) emptyResult() *QueryResult {
	return &QueryResult{
		Answer:  noInfoAnswer,
		Sources: []QuerySource{},
		Mode:    p.mode,
	}
}

func (p *preparedQuery) result(out *GenerateOutput) *QueryResult {
	sources := make([]QuerySource, 0, len(p.picked))
	scores := make([]float64, 0, len(p.picked))
	for _, sc := range p.picked {
		sources = append(sources, sc.toSource(p.docNames[sc.chunk.DocumentID]))
		scores = append(scores, sc.score)
	}
	return &QueryResult{
		Answer:        strings.TrimSpace(out.Answer),
		Sources:       sources,
		Confidence:    confidence(scores),
		Mode:          p.mode,
		Provider:      out.Provider,
		Model:         out.Model,
		ContextChunks: len(p.picked),
		PromptWords:   p.promptWords,
	}
}

// prepare runs the retrieval stage: scope resolution, search, filtering,
// ranking, context and prompt assembly.
func (s *RAGService) prepare(ctx context.Context, input QueryInput) (*preparedQuery, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, ErrInvalidInput
	}

	scope, err := s.resolveScope(input.UserID, input.DocumentIDs)
	if err != nil {
		return nil, err
	}

	mode, instruction := s.resolveMode(input.Mode, scope)
	prep := &preparedQuery{mode: mode, docNames: make(map[uint]string, len(scope))}
	for _, doc := range scope {
		prep.docNames[doc.ID] = doc.Name
	}
	if len(scope) == 0 {
		prep.noInfo = true
		return prep, nil
	}

	maxSources := input.MaxSources
	if maxSources <= 0 {
		maxSources = s.cfg.MaxSources
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	scopeIDs := make([]uint, 0, len(scope))
	for _, doc := range scope {
		scopeIDs = append(scopeIDs, doc.ID)
	}
	hits, err := s.index.Search(queryVec, maxSources*searchMultiplier, scopeIDs)
	if err != nil {
		return nil, err
	}

	scored, err := s.scoreHits(hits, question)
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		prep.noInfo = true
		return prep, nil
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].rank() > scored[j].rank() })
	if len(scored) > maxSources {
		scored = scored[:maxSources]
	}
	prep.picked = scored

	contextText := s.buildContext(scored, prep.docNames)
	prep.prompt = answerPrompt(instruction, contextText, question)
	prep.promptWords = len(strings.Fields(prep.prompt))
	return prep, nil
}

// resolveScope returns the indexed documents the query may search. An
// explicit id list must name the user's documents; pending, processing or
// failed ones are rejected. An empty list means every indexed document.
func (s *RAGService) resolveScope(userID uint, documentIDs []uint) ([]model.Document, error) {
	if len(documentIDs) == 0 {
		return s.documentRepo.ListIndexedByUserID(userID)
	}

	owned, err := s.documentRepo.ListByUserID(userID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]model.Document, len(owned))
	for _, doc := range owned {
		byID[doc.ID] = doc
	}

	scope := make([]model.Document, 0, len(documentIDs))
	seen := make(map[uint]bool, len(documentIDs))
	for _, id := range documentIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		doc, ok := byID[id]
		if !ok {
			return nil, ErrDocumentNotFound
		}
		if doc.Status != model.DocumentStatusIndexed {
			return nil, ErrDocumentNotReady
		}
		scope = append(scope, doc)
	}
	return scope, nil
}

// resolveMode picks the prompt instruction. Mode "industry" resolves to
// the dominant detected industry of the scoped documents when that
// industry has a dedicated instruction.
func (s *RAGService) resolveMode(mode string, scope []model.Document) (string, string) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "standard"
	}
	if mode == "industry" {
		if dominant := dominantIndustry(scope); dominant != "" {
			if instruction, ok := modeInstructions[dominant]; ok {
				return dominant, instruction
			}
		}
		return "industry", modeInstructions["industry"]
	}
	instruction, ok := modeInstructions[mode]
	if !ok {
		return "standard", modeInstructions["standard"]
	}
	return mode, instruction
}

// dominantIndustry returns the most common non-general detected industry,
// empty when the scope is mixed with no clear winner.
func dominantIndustry(scope []model.Document) string {
	counts := make(map[string]int)
	for _, doc := range scope {
		if doc.Industry != "" && doc.Industry != "general" {
			counts[doc.Industry]++
		}
	}
	best, bestCount := "", 0
	for industry, n := range counts {
		if n > bestCount {
			best, bestCount = industry, n
		} else if n == bestCount {
			best = ""
		}
	}
	return best
}

// scoreHits drops weak hits and attaches quality scores. Hits below the
// similarity floor or shorter than minChunkChars are discarded.
func (s *RAGService) scoreHits(hits []vectorindex.Hit, question string) ([]scoredChunk, error) {
	ids := make([]uint, 0, len(hits))
	scoreByID := make(map[uint]float64, len(hits))
	for _, hit := range hits {
		if float64(hit.Score) < s.cfg.MinScore {
			continue
		}
		ids = append(ids, hit.ChunkID)
		scoreByID[hit.ChunkID] = float64(hit.Score)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	chunks, err := s.chunkRepo.ListByIDs(ids)
	if err != nil {
		return nil, err
	}

	scored := make([]scoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		text := strings.TrimSpace(chunk.Text)
		if len(text) < minChunkChars {
			continue
		}
		scored = append(scored, scoredChunk{
			chunk:   chunk,
			score:   scoreByID[chunk.ID],
			quality: chunkQuality(text, question),
		})
	}
	return scored, nil
}

// searchDocument retrieves the strongest chunks of one document for the
// comparison flow: top 3 searched, filtered, best 2 kept.
func (s *RAGService) searchDocument(queryVec []float32, doc model.Document) ([]scoredChunk, error) {
	hits, err := s.index.Search(queryVec, 3, []uint{doc.ID})
	if err != nil {
		return nil, err
	}
	scored, err := s.scoreHits(hits, "")
	if err != nil {
		return nil, err
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > 2 {
		scored = scored[:2]
	}
	return scored, nil
}

// buildContext renders the ranked chunks as numbered source blocks and
// truncates at the context word budget.
func (s *RAGService) buildContext(scored []scoredChunk, docNames map[uint]string) string {
	parts := make([]string, 0, len(scored))
	for i, sc := range scored {
		parts = append(parts, fmt.Sprintf("[Source %d - Document: %s, Page: %d]\n%s\n",
			i+1, docNames[sc.chunk.DocumentID], sc.chunk.Page, strings.TrimSpace(sc.chunk.Text)))
	}
	contextText := strings.Join(parts, "\n")

	words := strings.Fields(contextText)
	if len(words) > s.cfg.MaxContextWords {
		contextText = strings.Join(words[:s.cfg.MaxContextWords], " ") + "... [truncated]"
	}
	return contextText
}

// chunkQuality is a heuristic in [about -0.2, 1.0]: keyword overlap with
// the question, a length band reward, sentence-final punctuation and
// vocabulary diversity.
func chunkQuality(text, question string) float64 {
	textWords := strings.Fields(strings.ToLower(text))
	if len(textWords) == 0 {
		return 0
	}

	score := 0.0
	questionWords := dedupe(strings.Fields(strings.ToLower(question)))
	if len(questionWords) > 0 {
		wordSet := make(map[string]bool, len(textWords))
		for _, w := range textWords {
			wordSet[w] = true
		}
		overlap := 0
		for _, w := range questionWords {
			if wordSet[w] {
				overlap++
			}
		}
		score += float64(overlap) / float64(len(questionWords)) * 0.4
	}

	switch n := len(textWords); {
	case n >= 50 && n <= 200:
		score += 0.3
	case n < 50:
		score -= 0.2
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "!") || strings.HasSuffix(trimmed, "?") {
		score += 0.1
	}

	unique := make(map[string]bool, len(textWords))
	for _, w := range textWords {
		unique[w] = true
	}
	score += float64(len(unique)) / float64(len(textWords)) * 0.2

	return math.Min(score, 1.0)
}

func dedupe(words []string) []string {
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// confidence blends the mean similarity with how many sources survived.
func confidence(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	avg := sum / float64(len(scores))
	coverage := math.Min(float64(len(scores))/3.0, 1.0)
	return round3(0.8*avg + 0.2*coverage)
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

func snippet(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= snippetRunes {
		return string(runes)
	}
	return string(runes[:snippetRunes]) + "..."
}

func answerPrompt(instruction, contextText, question string) string {
	return instruction + `

Please answer the following question based ONLY on the provided context from the documents. If the context doesn't contain enough information to answer the question completely, say so clearly.

CONTEXT:
` + contextText + `

QUESTION: ` + question + `

INSTRUCTIONS:
- Base your answer strictly on the provided context
- If information is not available in the context, state this clearly
- Provide specific references to source documents and pages when possible
- Be concise but comprehensive
- If the question asks for something not covered in the documents, explain what information is missing

ANSWER:`
}

func comparePrompt(contextText, question string) string {
	return `You are an AI assistant that specializes in comparing and contrasting information across multiple documents.

Please compare the information from the different documents provided in the context below, focusing on the specific question asked.

CONTEXT FROM MULTIPLE DOCUMENTS:
` + contextText + `

COMPARISON QUESTION: ` + question + `

INSTRUCTIONS:
- Compare and contrast the information from each document
- Highlight similarities and differences
- Point out any contradictions or complementary information
- Reference specific documents and pages
- If any document lacks relevant information, mention this
- Provide a balanced analysis based on the available content

COMPARISON ANALYSIS:`
}
