package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/vorth-network/vigil/screener/engine"
	"github.com/vorth-network/vigil/screener/namematch"
	"github.com/vorth-network/vigil/screener/policy"

	"github.com/labstack/echo/v4"
)

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	idx := srv.eng.Corpus()
	if idx.Len() == 0 {
		return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "vigil", Message: "ban corpus is empty"})
	}
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "vigil"})
}

type CheckNameResponse struct {
	Name          string           `json:"name"`
	Matched       bool             `json:"matched"`
	Match         *namematch.Match `json:"match,omitempty"`
	CorpusVersion string           `json:"corpus_version"`
}

func (srv *Server) HandleCheckName(c echo.Context) error {
	name := c.QueryParam("name")
	if strings.TrimSpace(name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name query parameter is required")
	}
	ctx := c.Request().Context()
	version := srv.eng.Corpus().Version
	m := srv.eng.Check(ctx, name)
	return c.JSON(http.StatusOK, CheckNameResponse{
		Name:          name,
		Matched:       m != nil,
		Match:         m,
		CorpusVersion: version,
	})
}

type CorpusInfo struct {
	Version    string    `json:"version"`
	Identities int       `json:"identities"`
	Patterns   int       `json:"patterns"`
	Skipped    int       `json:"skipped"`
	BuiltAt    time.Time `json:"built_at"`
}

func corpusInfo(idx *namematch.Index) CorpusInfo {
	return CorpusInfo{
		Version:    idx.Version,
		Identities: idx.Len(),
		Patterns:   idx.Patterns.Len(),
		Skipped:    idx.Skipped,
		BuiltAt:    idx.BuiltAt,
	}
}

func (srv *Server) HandleReload(c echo.Context) error {
	idx := srv.eng.ReloadCorpus(c.Request().Context())
	return c.JSON(http.StatusOK, corpusInfo(idx))
}

func (srv *Server) HandleJoin(c echo.Context) error {
	var evt engine.JoinEvent
	if err := c.Bind(&evt); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid join event")
	}
	out, err := srv.eng.ProcessJoin(c.Request().Context(), evt)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if out == nil {
		// automated account, not screened
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, out)
}

func (srv *Server) HandleListPolicies(c echo.Context) error {
	policies, err := srv.policies.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"policies": policies})
}

func (srv *Server) HandleGetPolicy(c echo.Context) error {
	p, err := srv.policies.Get(c.Request().Context(), c.Param("server"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

type ScreeningRequest struct {
	State string `json:"state"`
}

func (srv *Server) HandleSetScreening(c echo.Context) error {
	var req ScreeningRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	enabled, err := policy.ParseScreeningState(req.State)
	if err != nil {
		return err
	}
	p, err := srv.policies.SetScreening(c.Request().Context(), c.Param("server"), enabled)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

type ActionRequest struct {
	Action string `json:"action"`
}

func (srv *Server) HandleSetAction(c echo.Context) error {
	var req ActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := srv.policies.SetAction(c.Request().Context(), c.Param("server"), req.Action)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

type ChannelRequest struct {
	Channel string `json:"channel"`
}

func (srv *Server) HandleSetChannel(c echo.Context) error {
	var req ChannelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := srv.policies.SetNotificationChannel(c.Request().Context(), c.Param("server"), strings.TrimSpace(req.Channel))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

type ExemptionRequest struct {
	Member string `json:"member"`
}

type ExemptionResponse struct {
	// false when the exemption list was already in the requested state
	Changed bool                `json:"changed"`
	Policy  policy.ServerPolicy `json:"policy"`
}

func (srv *Server) HandleAddExemption(c echo.Context) error {
	var req ExemptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	member := strings.TrimSpace(req.Member)
	if member == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "member is required")
	}
	return srv.changeExemption(c, member, srv.policies.AddExemption)
}

func (srv *Server) HandleRemoveExemption(c echo.Context) error {
	return srv.changeExemption(c, c.Param("member"), srv.policies.RemoveExemption)
}

func (srv *Server) changeExemption(c echo.Context, member string, fn func(ctx context.Context, serverID, memberID string) (bool, error)) error {
	ctx := c.Request().Context()
	server := c.Param("server")
	changed, err := fn(ctx, server, member)
	if err != nil {
		return err
	}
	p, err := srv.policies.Get(ctx, server)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ExemptionResponse{Changed: changed, Policy: p})
}

func (srv *Server) HandleResetPolicy(c echo.Context) error {
	p, err := srv.policies.Reset(c.Request().Context(), c.Param("server"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (srv *Server) HandleStats(c echo.Context) error {
	st, err := srv.eng.Stats(c.Request().Context(), c.Param("server"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

type MemberFlagsResponse struct {
	ServerID string   `json:"server_id"`
	MemberID string   `json:"member_id"`
	Flags    []string `json:"flags"`
}

func (srv *Server) HandleGetMemberFlags(c echo.Context) error {
	server, member := c.Param("server"), c.Param("member")
	flags, err := srv.eng.MemberFlags(c.Request().Context(), server, member)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MemberFlagsResponse{ServerID: server, MemberID: member, Flags: flags})
}

func (srv *Server) HandleClearMemberFlags(c echo.Context) error {
	server, member := c.Param("server"), c.Param("member")
	if err := srv.eng.ClearMemberFlags(c.Request().Context(), server, member); err != nil {
		return err
	}
	srv.logger.Info("member flags cleared", "server", server, "member", member)
	return c.JSON(http.StatusOK, MemberFlagsResponse{ServerID: server, MemberID: member, Flags: []string{}})
}

func (srv *Server) HandleListRegistry(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"identities": srv.registry.List(),
		"corpus":     corpusInfo(srv.eng.Corpus()),
	})
}

type AddIdentityRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
	// auditor making the change
	Actor string `json:"actor"`
}

func (srv *Server) HandleAddIdentity(c echo.Context) error {
	var req AddIdentityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id and name are required")
	}
	ctx := c.Request().Context()
	bi, err := addIdentity(ctx, srv.stack, req.Actor, req.ID, req.Name, req.Reason)
	if err != nil {
		return err
	}
	srv.eng.ReloadCorpus(ctx)
	return c.JSON(http.StatusOK, bi)
}

func (srv *Server) HandleRemoveIdentity(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if err := removeIdentity(ctx, srv.stack, c.QueryParam("actor"), id); err != nil {
		return err
	}
	srv.eng.ReloadCorpus(ctx)
	return c.JSON(http.StatusOK, GenericStatus{Daemon: "vigil", Status: "ok", Message: "removed " + id})
}
