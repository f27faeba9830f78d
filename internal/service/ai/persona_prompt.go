package ai

import (
	"strings"

	"github.com/sajang-ai/backend/internal/model/persona"
)

// Format modes a client may request.
const (
	FormatStructured = "structured"
	FormatPlain      = "plain"
)

// ValidFormatMode reports whether mode is accepted. The empty string means structured.
func ValidFormatMode(mode string) bool {
	return mode == "" || mode == FormatStructured || mode == FormatPlain
}

// PriorContext carries summaries of the user's earlier conversations.
type PriorContext struct {
	// PersonaSummary is the latest summary with the same persona.
	PersonaSummary string
	// OtherSummary is the latest summary with any other persona.
	OtherSummary string
}

// Empty reports whether there is nothing to fuse.
func (p PriorContext) Empty() bool {
	return strings.TrimSpace(p.PersonaSummary) == "" && strings.TrimSpace(p.OtherSummary) == ""
}

const plainFormatDirective = `[응답 형식]
이 대화는 일반 텍스트로만 표시됩니다. 마크다운 문법을 절대 사용하지 마세요.
굵게나 기울임 같은 강조 표시, 글머리표나 번호 목록, 제목(#), 표, 코드 블록, 이모지를 사용하지 마세요.
자연스러운 문장과 문단으로만 답변하세요.`

const priorContextHeader = `[이전 상담 맥락]
아래는 이 사장님과 나눈 이전 상담의 요약입니다. 답변에 자연스럽게 반영하되, 요약을 봤다거나 이전 기록을 참고했다는 사실은 직접 언급하지 마세요.`

// BuildSystemPrompt assembles the outbound system prompt: the persona prompt, the
// plain-format directive when requested, then the fused prior-conversation block.
func BuildSystemPrompt(p *persona.Persona, formatMode string, prior PriorContext) string {
	var builder strings.Builder
	if p != nil {
		builder.WriteString(strings.TrimSpace(p.SystemPrompt))
	}

	if formatMode == FormatPlain {
		builder.WriteString("\n\n")
		builder.WriteString(plainFormatDirective)
	}

	if block := fusePriorContext(prior); block != "" {
		builder.WriteString("\n\n")
		builder.WriteString(block)
	}

	return builder.String()
}

func fusePriorContext(prior PriorContext) string {
	if prior.Empty() {
		return ""
	}

	var builder strings.Builder
	builder.WriteString(priorContextHeader)
	if s := strings.TrimSpace(prior.PersonaSummary); s != "" {
		builder.WriteString("\n\n같은 상담사와의 최근 상담:\n")
		builder.WriteString(s)
	}
	if s := strings.TrimSpace(prior.OtherSummary); s != "" {
		builder.WriteString("\n\n다른 분야 상담사와의 최근 상담:\n")
		builder.WriteString(s)
	}
	return builder.String()
}
