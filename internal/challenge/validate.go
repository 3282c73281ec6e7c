package challenge

import (
	"context"
	"fmt"
	"strings"

	"github.com/ibeckermayer/snapbot/internal/types"
)

// Normalize checks an operator answer for kind and returns the value to type
// into the page. One-time codes are 4 to 8 digits; spaces and dashes are
// dropped. Other kinds only need to be non-empty.
func Normalize(kind types.ChallengeKind, answer string) (string, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("%w: empty response", ErrInvalidResponse)
	}

	if kind != types.ChallengeTwoFactor {
		return answer, nil
	}

	code := strings.NewReplacer(" ", "", "-", "").Replace(answer)
	if len(code) < 4 || len(code) > 8 {
		return "", fmt.Errorf("%w: code must be 4-8 digits", ErrInvalidResponse)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: code must be numeric", ErrInvalidResponse)
		}
	}
	return code, nil
}

type validating struct {
	next     Resolver
	attempts int
}

// Validating wraps a resolver so malformed answers are rejected and the
// operator is asked again, up to attempts times in total.
func Validating(next Resolver, attempts int) Resolver {
	if attempts < 1 {
		attempts = 1
	}
	return &validating{next: next, attempts: attempts}
}

func (v *validating) Resolve(ctx context.Context, prompt types.ChallengePrompt) (string, error) {
	original := prompt.Text
	var lastErr error

	for i := 0; i < v.attempts; i++ {
		answer, err := v.next.Resolve(ctx, prompt)
		if err != nil {
			return "", err
		}

		normalized, err := Normalize(prompt.Kind, answer)
		if err == nil {
			return normalized, nil
		}
		lastErr = err
		prompt.Text = fmt.Sprintf("%s. %s", strings.TrimPrefix(err.Error(), ErrInvalidResponse.Error()+": "), original)
	}

	return "", fmt.Errorf("giving up after %d attempts: %w", v.attempts, lastErr)
}
