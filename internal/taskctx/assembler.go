package taskctx

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Iron-Ham/overseer/internal/logging"
	"github.com/Iron-Ham/overseer/internal/plan"
)

// charsPerToken is the rough length-based token estimate used for budgeting.
const charsPerToken = 4

// Priority classes, higher is kept longer. Critical blocks are never trimmed.
type Priority int

const (
	PriorityDocs Priority = iota
	PriorityHistory
	PriorityDecisions
	PriorityCritical
)

// Block is one labeled section of assembled context.
type Block struct {
	Label    string
	Content  string
	Priority Priority
}

// Tokens estimates the token cost of the block.
func (b Block) Tokens() int {
	return (len(b.Label) + len(b.Content)) / charsPerToken
}

// Context is the assembled, budgeted bundle for one task.
type Context struct {
	PlanRef         string
	Blocks          []Block
	EstimatedTokens int
	Trimmed         int // blocks dropped to fit the budget
}

// Prompt renders the bundle as markdown for the agent process.
func (c *Context) Prompt() string {
	var sb strings.Builder
	sb.WriteString("# Task Assignment\n")
	for _, b := range c.Blocks {
		sb.WriteString("\n## ")
		sb.WriteString(b.Label)
		sb.WriteString("\n")
		sb.WriteString(b.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("\nPlan Reference: ")
	sb.WriteString(c.PlanRef)
	sb.WriteString("\n")
	return sb.String()
}

// Doc is a documentation excerpt from the search collaborator.
type Doc struct {
	Title   string
	Content string
}

// DocSearcher is the optional documentation-search collaborator.
type DocSearcher interface {
	Search(ctx context.Context, query string) ([]Doc, error)
}

// HistoryItem records one completed unit of prior work in the same phase.
type HistoryItem struct {
	TaskDescription string
	Outcome         string
	FilesModified   []string
}

// Assembler builds Context bundles under a fixed token budget.
type Assembler struct {
	budget     int
	maxDocs    int
	maxHistory int
	log        *logging.Logger
}

// NewAssembler creates an assembler. budget is the token ceiling; maxDocs and
// maxHistory cap how many documentation excerpts and history entries are
// considered before budgeting.
func NewAssembler(budget, maxDocs, maxHistory int, log *logging.Logger) *Assembler {
	return &Assembler{
		budget:     budget,
		maxDocs:    maxDocs,
		maxHistory: maxHistory,
		log:        log.WithComponent("taskctx"),
	}
}

// Build assembles the context bundle for a task. search may be nil. Build
// never fails: a search error drops the documentation blocks, and a budget
// that cannot fit even the critical blocks is exceeded rather than erroring.
func (a *Assembler) Build(ctx context.Context, task *plan.Task, p *plan.Plan, history []HistoryItem, search DocSearcher) *Context {
	out := &Context{
		PlanRef: fmt.Sprintf("%s:%s:v%d", p.Project, p.ID, p.Version),
	}

	out.Blocks = append(out.Blocks, Block{
		Label:    "Task",
		Content:  a.renderTask(task),
		Priority: PriorityCritical,
	})
	if len(p.Overview.Constraints) > 0 {
		out.Blocks = append(out.Blocks, Block{
			Label:    "Constraints",
			Content:  bulleted(p.Overview.Constraints),
			Priority: PriorityCritical,
		})
	}

	for _, d := range relevantDecisions(task, p.Decisions) {
		content := d.Statement
		if d.Rationale != "" {
			content += "\nRationale: " + d.Rationale
		}
		out.Blocks = append(out.Blocks, Block{
			Label:    "Decision",
			Content:  content,
			Priority: PriorityDecisions,
		})
	}

	if summary := summarizeHistory(history, a.maxHistory); summary != "" {
		out.Blocks = append(out.Blocks, Block{
			Label:    "Prior Work",
			Content:  summary,
			Priority: PriorityHistory,
		})
	}

	if search != nil {
		docs, err := search.Search(ctx, task.Description)
		if err != nil {
			a.log.Warn("doc search failed, continuing without docs", "error", err)
		} else {
			for _, doc := range rankDocs(task, docs, a.maxDocs) {
				out.Blocks = append(out.Blocks, Block{
					Label:    "Documentation: " + doc.Title,
					Content:  doc.Content,
					Priority: PriorityDocs,
				})
			}
		}
	}

	a.trim(out)
	out.EstimatedTokens = totalTokens(out.Blocks)
	return out
}

// trim drops whole blocks, lowest priority class first and oldest first
// within a class, until the bundle fits the budget. Critical blocks survive
// even when they alone exceed the budget.
func (a *Assembler) trim(c *Context) {
	for _, class := range []Priority{PriorityDocs, PriorityHistory, PriorityDecisions} {
		for totalTokens(c.Blocks) > a.budget {
			idx := -1
			for i, b := range c.Blocks {
				if b.Priority == class {
					idx = i
					break
				}
			}
			if idx < 0 {
				break
			}
			a.log.Debug("trimming context block over budget",
				"label", c.Blocks[idx].Label, "tokens", c.Blocks[idx].Tokens())
			c.Blocks = append(c.Blocks[:idx], c.Blocks[idx+1:]...)
			c.Trimmed++
		}
	}
}

func (a *Assembler) renderTask(task *plan.Task) string {
	var sb strings.Builder
	sb.WriteString(task.Description)
	if len(task.Files) > 0 {
		sb.WriteString("\n\nFiles to modify:\n")
		sb.WriteString(bulleted(task.Files))
	}
	if len(task.Verification) > 0 {
		sb.WriteString("\n\nVerification required:\n")
		sb.WriteString(bulleted(task.Verification))
	}
	return sb.String()
}

func totalTokens(blocks []Block) int {
	total := 0
	for _, b := range blocks {
		total += b.Tokens()
	}
	return total
}

func bulleted(items []string) string {
	var sb strings.Builder
	for i, item := range items {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- ")
		sb.WriteString(item)
	}
	return sb.String()
}

// relevantDecisions keeps decisions that mention one of the task's files or
// share a keyword with the task description.
func relevantDecisions(task *plan.Task, decisions []plan.Decision) []plan.Decision {
	keywords := keywordSet(task.Description)

	var out []plan.Decision
	for _, d := range decisions {
		lower := strings.ToLower(d.Statement)
		matched := false
		for _, f := range task.Files {
			if strings.Contains(lower, strings.ToLower(f)) {
				matched = true
				break
			}
		}
		if !matched {
			for word := range keywordSet(d.Statement) {
				if keywords[word] {
					matched = true
					break
				}
			}
		}
		if matched {
			out = append(out, d)
		}
	}
	return out
}

// rankDocs scores docs by keyword overlap with the task (title matches
// weighted heavier) and keeps the top max.
func rankDocs(task *plan.Task, docs []Doc, max int) []Doc {
	keywords := keywordSet(task.Description)

	type scored struct {
		score int
		doc   Doc
	}
	var ranked []scored
	for _, doc := range docs {
		score := 0
		for word := range keywordSet(doc.Title) {
			if keywords[word] {
				score += 3
			}
		}
		content := doc.Content
		if len(content) > 500 {
			content = content[:500]
		}
		for word := range keywordSet(content) {
			if keywords[word] {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{score, doc})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > max {
		ranked = ranked[:max]
	}
	out := make([]Doc, len(ranked))
	for i, r := range ranked {
		out[i] = r.doc
	}
	return out
}

// summarizeHistory renders the most recent max entries as a bullet list.
func summarizeHistory(history []HistoryItem, max int) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > max {
		history = history[len(history)-max:]
	}
	var lines []string
	for _, item := range history {
		line := "- Completed: " + item.TaskDescription
		if item.Outcome != "" {
			line += " (" + item.Outcome + ")"
		}
		if len(item.FilesModified) > 0 {
			line += " [" + strings.Join(item.FilesModified, ", ") + "]"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func keywordSet(text string) map[string]bool {
	out := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?()[]{}\"'")
		if len(word) > 2 {
			out[word] = true
		}
	}
	return out
}
