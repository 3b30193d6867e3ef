// Package ussd implements the menu-driven session flow exposed to the
// USSD gateway: a small state machine over per-session selections, plus
// the handler that wires it to storage, fraud checks and allocation.
package ussd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/reliefline/reliefline/internal/matching"
	"github.com/reliefline/reliefline/pkg/models"
)

// defaultMenuOptions caps how many resources one USSD screen lists when
// no limit is configured.
const defaultMenuOptions = 5

// Reply is one gateway response. Terminal replies close the session on
// the handset side; the handler drops the server-side session to match.
type Reply struct {
	Text     string
	Terminal bool
}

// Render produces the wire form the gateway expects.
func (r Reply) Render() string {
	if r.Terminal {
		return prefixEnd + r.Text
	}
	return prefixContinue + r.Text
}

// Outcome is the result of feeding one input token to the machine. When
// Finalize is set the caller confirmed the request; the reply is left to
// the handler, which performs the allocation and reports its result.
type Outcome struct {
	Step       models.Step
	Selections models.Selections
	Reply      Reply
	Finalize   bool
}

// Catalog resolves a single resource for re-validation between screens.
type Catalog interface {
	GetByID(ctx context.Context, id int64) (*models.Resource, error)
}

// Machine drives menu transitions. It only reads; all writes happen in
// the handler after a transition succeeds.
type Machine struct {
	engine     *matching.Engine
	catalog    Catalog
	maxOptions int
}

// NewMachine creates a menu state machine over the given matching engine
// and resource catalog. maxOptions caps the resource list per screen;
// zero means the default of five.
func NewMachine(engine *matching.Engine, catalog Catalog, maxOptions int) *Machine {
	if maxOptions <= 0 {
		maxOptions = defaultMenuOptions
	}
	return &Machine{engine: engine, catalog: catalog, maxOptions: maxOptions}
}

// LatestToken extracts the newest input from the cumulative text the
// gateway sends ("1*Lokoja*2" means the caller just typed "2").
func LatestToken(text string) string {
	parts := strings.Split(text, "*")
	return strings.TrimSpace(parts[len(parts)-1])
}

// Next advances the machine one step. step and sel come from the stored
// session; token is the caller's latest input.
func (m *Machine) Next(ctx context.Context, step models.Step, sel models.Selections, token string) (Outcome, error) {
	switch step {
	case models.StepMainMenu:
		return m.mainMenu(sel, token), nil
	case models.StepLocationInput:
		return m.locationInput(ctx, sel, token)
	case models.StepResourceSelection:
		return m.resourceSelection(ctx, sel, token)
	case models.StepConfirmation:
		return m.confirmation(sel, token), nil
	default:
		// New session, or a step this build no longer knows. Show the
		// main menu and start over.
		return Outcome{
			Step:  models.StepMainMenu,
			Reply: Reply{Text: msgMainMenu},
		}, nil
	}
}

func (m *Machine) mainMenu(sel models.Selections, token string) Outcome {
	if token == "0" {
		return Outcome{Step: models.StepMainMenu, Selections: sel, Reply: Reply{Text: msgFarewell, Terminal: true}}
	}

	var rt models.ResourceType
	switch token {
	case "1":
		rt = models.ResourceTypeShelter
	case "2":
		rt = models.ResourceTypeFood
	case "3":
		rt = models.ResourceTypeTransport
	default:
		return Outcome{Step: models.StepMainMenu, Selections: sel, Reply: Reply{Text: msgInvalidService}}
	}

	return Outcome{
		Step:       models.StepLocationInput,
		Selections: models.Selections{ResourceType: rt},
		Reply:      Reply{Text: locationPrompt(rt)},
	}
}

func (m *Machine) locationInput(ctx context.Context, sel models.Selections, token string) (Outcome, error) {
	if utf8.RuneCountInString(token) < 2 {
		return Outcome{Step: models.StepLocationInput, Selections: sel, Reply: Reply{Text: msgInvalidLocation}}, nil
	}

	candidates, err := m.engine.FindCandidates(ctx, matching.Query{
		Type:         sel.ResourceType,
		LocationText: token,
		Limit:        m.maxOptions,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("find candidates: %w", err)
	}
	if len(candidates) == 0 {
		return Outcome{
			Step:       models.StepLocationInput,
			Selections: sel,
			Reply:      Reply{Text: noResourcesMessage(sel.ResourceType, token), Terminal: true},
		}, nil
	}

	sel.Location = token
	sel.Candidates = make([]int64, len(candidates))
	for i, c := range candidates {
		sel.Candidates[i] = c.Resource.ID
	}

	return Outcome{
		Step:       models.StepResourceSelection,
		Selections: sel,
		Reply:      Reply{Text: resourceMenu(sel.ResourceType, token, candidates)},
	}, nil
}

func (m *Machine) resourceSelection(ctx context.Context, sel models.Selections, token string) (Outcome, error) {
	if token == "0" {
		return Outcome{Step: models.StepMainMenu, Reply: Reply{Text: msgMainMenu}}, nil
	}

	idx, err := strconv.Atoi(token)
	if err != nil || idx < 1 || idx > len(sel.Candidates) {
		return Outcome{Step: models.StepResourceSelection, Selections: sel, Reply: Reply{Text: msgInvalidResource}}, nil
	}

	id := sel.Candidates[idx-1]
	resource, err := m.catalog.GetByID(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("get resource %d: %w", id, err)
	}
	if resource == nil || !resource.IsActive || resource.AvailableCapacity <= 0 {
		return m.repromptWithoutDepleted(ctx, sel, id)
	}

	sel.ResourceID = id
	return Outcome{
		Step:       models.StepConfirmation,
		Selections: sel,
		Reply:      Reply{Text: confirmationPrompt(sel.ResourceType, resource)},
	}, nil
}

// repromptWithoutDepleted rebuilds the selection screen after the chosen
// resource turned out to be gone. Candidates that are still live keep
// their relative order; when nothing is left the session ends.
func (m *Machine) repromptWithoutDepleted(ctx context.Context, sel models.Selections, depletedID int64) (Outcome, error) {
	var (
		remaining  []int64
		candidates []matching.Candidate
	)
	for _, id := range sel.Candidates {
		if id == depletedID {
			continue
		}
		r, err := m.catalog.GetByID(ctx, id)
		if err != nil {
			return Outcome{}, fmt.Errorf("get resource %d: %w", id, err)
		}
		if r == nil || !r.IsActive || r.AvailableCapacity <= 0 {
			continue
		}
		remaining = append(remaining, id)
		candidates = append(candidates, matching.Candidate{Resource: r})
	}

	if len(remaining) == 0 {
		return Outcome{
			Step:       models.StepResourceSelection,
			Selections: sel,
			Reply:      Reply{Text: msgDepleted, Terminal: true},
		}, nil
	}

	sel.Candidates = remaining
	return Outcome{
		Step:       models.StepResourceSelection,
		Selections: sel,
		Reply: Reply{Text: msgResourceTaken + "\r\n" +
			resourceMenu(sel.ResourceType, sel.Location, candidates)},
	}, nil
}

func (m *Machine) confirmation(sel models.Selections, token string) Outcome {
	switch token {
	case "1":
		return Outcome{Step: models.StepConfirmation, Selections: sel, Finalize: true}
	case "2":
		return Outcome{Step: models.StepConfirmation, Selections: sel, Reply: Reply{Text: msgCancelled, Terminal: true}}
	default:
		return Outcome{Step: models.StepConfirmation, Selections: sel, Reply: Reply{Text: msgConfirmChoices}}
	}
}
