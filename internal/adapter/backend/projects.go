package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"canvaschat/internal/domain"
	"canvaschat/internal/infra/tracer"
)

// ListProjects fetches every stored project. The backend returns newest first.
func (c *Client) ListProjects(ctx context.Context) ([]domain.Project, error) {
	ctx, span := tracer.StartSpan(ctx, "backend.projects.list")
	defer span.End()

	body, err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/canvases", nil)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("ListProjects", err)
	}

	var projects []domain.Project
	if err := json.Unmarshal(body, &projects); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal projects: %w", err)
	}

	span.SetAttributes(tracer.IntAttr("projects.count", len(projects)))
	tracer.SetOK(span)
	return projects, nil
}

// SaveProject upserts one full project document. Writes are rate-limited and
// circuit-broken; a persistent backend outage fails fast instead of queueing.
func (c *Client) SaveProject(ctx context.Context, p *domain.Project) error {
	ctx, span := tracer.StartSpan(ctx, "backend.projects.save")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("project.id", p.ID))

	body, err := marshalBody(p)
	if err != nil {
		tracer.RecordError(span, err)
		return err
	}

	if _, err := c.doGuardedJSON(ctx, http.MethodPost, c.baseURL+"/canvases", body); err != nil {
		tracer.RecordError(span, err)
		return domain.WrapOp("SaveProject", err)
	}

	tracer.SetOK(span)
	c.logger.Debug("project saved", "id", p.ID, "bytes", len(body))
	return nil
}

// DeleteProject removes one project by id.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	ctx, span := tracer.StartSpan(ctx, "backend.projects.delete")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("project.id", id))

	u := c.baseURL + "/canvases/" + url.PathEscape(id)
	if _, err := c.doGuardedJSON(ctx, http.MethodDelete, u, nil); err != nil {
		tracer.RecordError(span, err)
		return domain.WrapOp("DeleteProject", err)
	}

	tracer.SetOK(span)
	c.logger.Debug("project deleted", "id", id)
	return nil
}
