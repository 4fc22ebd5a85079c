package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"

	"github.com/jiuai233/StreamDeck/internal/driver"
)

// consoleOperator asks on the terminal whether to continue after each pause.
func consoleOperator(out io.Writer) driver.Operator {
	return driver.OperatorFunc(func(ctx context.Context, p *driver.Pause) error {
		fmt.Fprintln(out)
		fmt.Fprintln(out, pauseBoxStyle.Render(renderPause(p)))

		proceed := true
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Continue the scan?").
					Description("Fix the problem in VTube Studio first, then continue").
					Affirmative("Continue").
					Negative("Abort").
					Value(&proceed),
			),
		)
		if err := form.RunWithContext(ctx); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return errAborted
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("pause prompt failed: %w", err)
		}
		if !proceed {
			return errAborted
		}
		p.Resolve()
		return nil
	})
}

func renderPause(p *driver.Pause) string {
	text := warningStyle.Render(p.Message)
	if p.Hint != "" {
		text += "\n" + p.Hint
	}
	if p.Err != nil {
		text += "\n" + skippedStyle.Render(p.Err.Error())
	}
	return text
}
