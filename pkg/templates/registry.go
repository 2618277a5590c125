// Package templates resolves the prompt used for an AI operation. Resolution
// walks account-owned templates, then the shared global account, then the
// compiled-in defaults, so every operation has a usable prompt even on a
// fresh install.
package templates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/garethmul/newsmill/pkg/models"
	"github.com/garethmul/newsmill/pkg/services"
)

// ErrTemplateNotFound is returned when no account, global, or built-in
// template matches the requested name.
var ErrTemplateNotFound = errors.New("template not found")

// Registry resolves prompt templates with fallback.
type Registry struct {
	templates *services.TemplateService
	logger    *slog.Logger
}

// NewRegistry creates a Registry.
func NewRegistry(templates *services.TemplateService, logger *slog.Logger) *Registry {
	return &Registry{
		templates: templates,
		logger:    logger.With("component", "templates"),
	}
}

// Resolve returns the prompt to use for the named template: the account's
// active template first, then the global account's, then the built-in
// default.
func (r *Registry) Resolve(ctx context.Context, accountID, name string) (*models.ResolvedPrompt, error) {
	for _, owner := range []struct {
		accountID string
		origin    string
	}{
		{accountID, "account"},
		{models.GlobalAccountID, "global"},
	} {
		prompt, err := r.resolveStored(ctx, owner.accountID, name, owner.origin)
		if err == nil {
			return prompt, nil
		}
		if !errors.Is(err, services.ErrNotFound) {
			return nil, err
		}
	}

	if prompt, ok := builtinPrompt(name); ok {
		r.logger.Debug("using built-in template", "name", name, "account_id", accountID)
		return prompt, nil
	}
	return nil, fmt.Errorf("%w: %q for account %q", ErrTemplateNotFound, name, accountID)
}

// resolveStored loads an active stored template and its current version.
func (r *Registry) resolveStored(ctx context.Context, accountID, name, origin string) (*models.ResolvedPrompt, error) {
	template, err := r.templates.GetTemplateByName(ctx, accountID, name)
	if err != nil {
		return nil, err
	}

	version, err := r.templates.CurrentVersion(ctx, template.ID)
	if errors.Is(err, services.ErrNotFound) {
		// A template without a current version is unusable; treat it as
		// absent so resolution falls through, but say so.
		r.logger.Warn("template has no current version, skipping",
			"template_id", template.ID, "name", name, "account_id", accountID)
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return resolvedFromStored(template, version, origin), nil
}

func resolvedFromStored(template *models.PromptTemplate, version *models.PromptVersion, origin string) *models.ResolvedPrompt {
	return &models.ResolvedPrompt{
		TemplateID:        template.ID,
		TemplateName:      template.Name,
		Category:          template.Category,
		MediaType:         template.MediaType,
		ParsingMethod:     template.ParsingMethod,
		VersionNumber:     version.VersionNumber,
		PromptText:        version.PromptText,
		SystemInstruction: version.SystemInstruction,
		Origin:            origin,
	}
}

// GenerationStages returns the account's content generation run: every
// active template with a category, tenant templates shadowing global ones of
// the same name, ordered by (execution_order, name). A stored template
// without a current version is unusable and skipped. When no stored
// generation templates exist at all, the built-in set is returned.
func (r *Registry) GenerationStages(ctx context.Context, accountID string) ([]*models.ResolvedPrompt, error) {
	own, err := r.templates.ListGenerationTemplates(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list generation templates: %w", err)
	}
	global, err := r.templates.ListGenerationTemplates(ctx, models.GlobalAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list global generation templates: %w", err)
	}

	merged := make([]*stage, 0, len(own)+len(global))
	seen := make(map[string]bool, len(own))
	for _, t := range own {
		merged = append(merged, &stage{template: t, origin: "account"})
		seen[t.Name] = true
	}
	for _, t := range global {
		if !seen[t.Name] {
			merged = append(merged, &stage{template: t, origin: "global"})
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i].template, merged[j].template
		if a.ExecutionOrder != b.ExecutionOrder {
			return a.ExecutionOrder < b.ExecutionOrder
		}
		return a.Name < b.Name
	})

	var prompts []*models.ResolvedPrompt
	for _, st := range merged {
		version, err := r.templates.CurrentVersion(ctx, st.template.ID)
		if errors.Is(err, services.ErrNotFound) {
			r.logger.Warn("template has no current version, skipping",
				"template_id", st.template.ID, "name", st.template.Name,
				"account_id", st.template.AccountID)
			continue
		}
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, resolvedFromStored(st.template, version, st.origin))
	}

	if len(prompts) == 0 {
		r.logger.Debug("no stored generation templates, using built-in set",
			"account_id", accountID)
		return builtinGenerationSet(), nil
	}
	return prompts, nil
}

type stage struct {
	template *models.PromptTemplate
	origin   string
}
