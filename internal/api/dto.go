package api

import (
	"github.com/TrasparenzAI/rule-service/internal/domain"
)

// ResultDTO is the JSON shape of a classification. Tied outcomes carry their
// candidates in Multiple; not found children carry the term list in Term and
// a null url.
type ResultDTO struct {
	URL      *string     `json:"url"`
	RuleName string      `json:"ruleName"`
	Term     *string     `json:"term"`
	Content  *string     `json:"content"`
	Where    *string     `json:"where"`
	Leaf     bool        `json:"leaf"`
	Status   int         `json:"status"`
	Score    *float64    `json:"score"`
	Multiple []ResultDTO `json:"multiple,omitempty"`
}

// ErrorDTO is the body of every error response.
type ErrorDTO struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func toDTO(o domain.Outcome) ResultDTO {
	switch v := o.(type) {
	case domain.Single:
		return fromResult(v.Result)
	case domain.Tied:
		multiple := make([]ResultDTO, len(v.Results))
		for i, r := range v.Results {
			multiple[i] = fromResult(r)
		}
		return ResultDTO{RuleName: v.Rule, Leaf: v.Leaf, Status: v.Code(), Multiple: multiple}
	case domain.NotFound:
		return ResultDTO{RuleName: v.Rule, Term: &v.Terms, Leaf: v.Leaf, Status: v.Code()}
	}
	return ResultDTO{Status: domain.StatusFailure}
}

func fromResult(r domain.Result) ResultDTO {
	return ResultDTO{
		URL:      &r.URL,
		RuleName: r.Rule,
		Term:     &r.Term,
		Content:  &r.Content,
		Where:    &r.Where,
		Leaf:     r.Leaf,
		Status:   r.Status,
		Score:    &r.Score,
	}
}

func toDTOs(outcomes []domain.Outcome) []ResultDTO {
	out := make([]ResultDTO, len(outcomes))
	for i, o := range outcomes {
		out[i] = toDTO(o)
	}
	return out
}
