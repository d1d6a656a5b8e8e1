package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/c360studio/stagehand/chain"
	"github.com/c360studio/stagehand/runner"
	"github.com/c360studio/stagehand/template"
)

// gateEvaluator checks whether a stage gate's precondition is met.
// Evaluation alone never mutates anything.
type gateEvaluator struct {
	chains *chain.Store
	run    runner.CommandRunner
}

// Evaluate returns nil when the gate may be satisfied now. Unmet
// preconditions come back as *GateNotSatisfiableError naming the specific
// condition; malformed input comes back as *ValidationError.
func (g *gateEvaluator) Evaluate(ctx context.Context, w *Workflow, stage *StageState, satisfiedBy string) error {
	switch stage.Gate.Type {
	case template.GateAuto:
		return nil

	case template.GateHumanApproval:
		if strings.TrimSpace(satisfiedBy) == "" {
			return &ValidationError{Field: "satisfiedBy", Message: "human approval requires an approver"}
		}
		return nil

	case template.GateVerificationPass:
		return g.evaluateVerification(ctx, w, stage)

	case template.GateChainComplete:
		return g.evaluateChainComplete(w, stage)

	default:
		return &ValidationError{
			Field:   "gate.type",
			Message: fmt.Sprintf("unknown gate type %q", stage.Gate.Type),
		}
	}
}

// evaluateVerification runs the gate's commands sequentially, stopping at
// and reporting the first non-zero exit.
func (g *gateEvaluator) evaluateVerification(ctx context.Context, w *Workflow, stage *StageState) error {
	for _, command := range stage.Gate.Commands {
		res, err := g.run.Run(ctx, command)
		if err != nil {
			return fmt.Errorf("verification command %q: %w", command, err)
		}
		if res.ExitCode != 0 {
			reason := fmt.Sprintf("command %q exited %d", command, res.ExitCode)
			if detail := strings.TrimSpace(res.Stderr); detail != "" {
				reason += ": " + firstLine(detail)
			}
			return &GateNotSatisfiableError{
				WorkflowID: w.ID,
				StageName:  stage.Name,
				Gate:       stage.Gate.Type,
				Reason:     reason,
			}
		}
	}
	return nil
}

// evaluateChainComplete requires every referenced chain to be done and to
// have passed its completion validation. The gate's chainId narrows the
// check to one chain; otherwise every chain for the workflow's request is
// checked.
func (g *gateEvaluator) evaluateChainComplete(w *Workflow, stage *StageState) error {
	notSatisfiable := func(reason string) error {
		return &GateNotSatisfiableError{
			WorkflowID: w.ID,
			StageName:  stage.Name,
			Gate:       stage.Gate.Type,
			Reason:     reason,
		}
	}

	var chains []*chain.Chain
	if stage.Gate.ChainID != "" {
		c, err := g.chains.GetChain(stage.Gate.ChainID)
		if err != nil {
			if errors.Is(err, chain.ErrChainNotFound) {
				return notSatisfiable(fmt.Sprintf("chain %s does not exist", stage.Gate.ChainID))
			}
			return err
		}
		chains = append(chains, c)
	} else {
		all, err := g.chains.ListChains(w.RequestID)
		if err != nil {
			return err
		}
		chains = all
	}
	if len(chains) == 0 {
		return notSatisfiable(fmt.Sprintf("no chains recorded for request %s", w.RequestID))
	}

	for _, c := range chains {
		switch c.Status {
		case chain.StatusDone:
			continue
		case chain.StatusCancelled:
			return notSatisfiable(fmt.Sprintf("chain %s was cancelled", c.ID))
		}

		// Still active. Report the checks standing between this chain
		// and completion so a human can act on them.
		result, err := g.chains.RunValidation(c.ID)
		if err != nil {
			return err
		}
		if failed := result.FailedRequired(); len(failed) > 0 {
			return notSatisfiable(fmt.Sprintf("chain %s has unmet completion checks:\n%s",
				c.ID, result.FormatFeedback()))
		}
		return notSatisfiable(fmt.Sprintf("chain %s is not done yet", c.ID))
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
