package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"storyboard-api/board"
	"storyboard-api/domain"
	"storyboard-api/storage"
)

var errCardNotFound = errors.New("card not found")

const defaultCardsWarning = "project created without its default cards"

type handlers struct {
	projects ProjectService
	sessions Sessions
	deduper  Deduper
	log      *log.Logger
}

// Register wires up all API routes on the provided Echo instance. deduper
// may be nil, in which case Idempotency-Key headers are ignored.
func Register(e *echo.Echo, projects ProjectService, sessions Sessions, auth Authenticator, deduper Deduper, logger *log.Logger) {
	h := &handlers{projects: projects, sessions: sessions, deduper: deduper, log: logger}

	e.GET("/healthz", healthz)
	e.GET("/api/projects/:id/stream", h.streamCards, RequireUser(auth, true))

	g := e.Group("/api", RequestMetrics(logger), RequireUser(auth, false))
	g.GET("/projects", h.listProjects)
	g.POST("/projects", h.createProject)
	g.PATCH("/projects/:id", h.editProject)
	g.DELETE("/projects/:id", h.deleteProject)
	g.PUT("/projects/:id/ratio", h.setRatio)
	g.GET("/projects/:id/cards", h.listCards)
	g.POST("/projects/:id/cards", h.addCard)
	g.POST("/projects/:id/cards/reorder", h.reorderCards)
	g.PATCH("/projects/:id/cards/:cardId", h.editCard)
	g.DELETE("/projects/:id/cards/:cardId", h.removeCard)
	g.PUT("/projects/:id/cards/:cardId/image", h.setImage)
}

func healthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (h *handlers) listProjects(c echo.Context) error {
	start := time.Now()
	projects, err := h.projects.List(c.Request().Context(), userID(c), c.QueryParam("search"))
	metricsFrom(c).ObserveRemote(time.Since(start))
	if err != nil {
		return h.fail(c, "storage", err)
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	metricsFrom(c).SetItems(len(projects))
	return c.JSON(http.StatusOK, projectsResponse{Projects: projects})
}

func (h *handlers) createProject(c echo.Context) error {
	ctx := c.Request().Context()
	uid := userID(c)

	key := strings.TrimSpace(c.Request().Header.Get(IdempotencyKeyHeader))
	if key != "" && h.deduper != nil {
		added, err := h.deduper.Add(ctx, uid, key)
		if err != nil {
			return h.fail(c, "dedupe", err)
		}
		if !added {
			return h.replayCreate(c, key)
		}
	}

	start := time.Now()
	p, err := h.projects.Create(ctx, uid)
	metricsFrom(c).ObserveRemote(time.Since(start))
	if err != nil && !errors.Is(err, board.ErrDefaultCards) {
		h.forgetKey(c, key)
		return h.fail(c, "storage", err)
	}
	if key != "" && h.deduper != nil {
		if cerr := h.deduper.Complete(ctx, uid, key, p.ID); cerr != nil {
			h.log.WithField("project_id", p.ID).WithError(cerr).Warn("store idempotency result failed")
		}
	}

	resp := createProjectResponse{Project: p}
	if err != nil {
		metricsFrom(c).SetErrorStage("default_cards")
		h.log.WithFields(log.Fields{"user_id": uid, "project_id": p.ID}).WithError(err).Error("create default cards failed")
		resp.Warning = defaultCardsWarning
	}
	return c.JSON(http.StatusCreated, resp)
}

// replayCreate answers a repeated create with the project made by the first
// request.
func (h *handlers) replayCreate(c echo.Context, key string) error {
	ctx := c.Request().Context()
	uid := userID(c)
	id, err := h.deduper.Result(ctx, uid, key)
	switch {
	case errors.Is(err, ErrRequestInFlight):
		metricsFrom(c).SetErrorStage("dedupe")
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, redis.Nil):
		// Expired between Add and Result; the next attempt creates anew.
		metricsFrom(c).SetErrorStage("dedupe")
		return c.JSON(http.StatusConflict, errorResponse{Error: "idempotency key expired, retry"})
	case err != nil:
		return h.fail(c, "dedupe", err)
	}
	p, err := h.projects.Get(ctx, uid, id)
	if err != nil {
		return h.fail(c, "storage", err)
	}
	return c.JSON(http.StatusOK, createProjectResponse{Project: p})
}

func (h *handlers) forgetKey(c echo.Context, key string) {
	if key == "" || h.deduper == nil {
		return
	}
	if err := h.deduper.Remove(c.Request().Context(), userID(c), key); err != nil {
		h.log.WithError(err).Warn("remove idempotency key failed")
	}
}

func (h *handlers) editProject(c echo.Context) error {
	var req editFieldRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	if err := h.projects.EditField(c.Request().Context(), userID(c), c.Param("id"), req.Field, req.Value); err != nil {
		return h.fail(c, "edit", err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *handlers) deleteProject(c echo.Context) error {
	start := time.Now()
	err := h.projects.Delete(c.Request().Context(), userID(c), c.Param("id"))
	metricsFrom(c).ObserveRemote(time.Since(start))
	if err != nil {
		return h.fail(c, "storage", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) setRatio(c echo.Context) error {
	var req ratioRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	start := time.Now()
	err := h.projects.SetRatio(c.Request().Context(), userID(c), c.Param("id"), req.Ratio)
	metricsFrom(c).ObserveRemote(time.Since(start))
	if err != nil {
		return h.fail(c, "storage", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// session returns the editing session of the :id project after checking
// that the caller owns it.
func (h *handlers) session(c echo.Context) (*board.Session, error) {
	ctx := c.Request().Context()
	projectID := c.Param("id")
	start := time.Now()
	defer func() { metricsFrom(c).ObserveRemote(time.Since(start)) }()

	if _, err := h.projects.Get(ctx, userID(c), projectID); err != nil {
		return nil, err
	}
	return h.sessions.Open(ctx, projectID)
}

func (h *handlers) listCards(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return h.fail(c, "session", err)
	}
	cards := s.Cards()
	metricsFrom(c).SetItems(len(cards))
	return c.JSON(http.StatusOK, cardsResponse{Cards: cards})
}

func (h *handlers) addCard(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return h.fail(c, "session", err)
	}
	start := time.Now()
	card, err := s.AddCard(c.Request().Context())
	metricsFrom(c).ObserveRemote(time.Since(start))
	if err != nil {
		return h.fail(c, "storage", err)
	}
	return c.JSON(http.StatusCreated, card)
}

func (h *handlers) removeCard(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return h.fail(c, "session", err)
	}
	start := time.Now()
	err = s.RemoveCard(c.Request().Context(), c.Param("cardId"))
	metricsFrom(c).ObserveRemote(time.Since(start))
	if err != nil {
		return h.fail(c, "storage", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) editCard(c echo.Context) error {
	var req editFieldRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	if req.Field != domain.FieldText {
		return h.fail(c, "edit", board.ErrInvalidField)
	}
	s, err := h.session(c)
	if err != nil {
		return h.fail(c, "session", err)
	}
	if !s.EditText(c.Param("cardId"), req.Value) {
		return h.fail(c, "edit", errCardNotFound)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *handlers) setImage(c echo.Context) error {
	var req imageRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	s, err := h.session(c)
	if err != nil {
		return h.fail(c, "session", err)
	}
	start := time.Now()
	ok, err := s.SetImage(c.Request().Context(), c.Param("cardId"), req.URL)
	metricsFrom(c).ObserveRemote(time.Since(start))
	if !ok {
		return h.fail(c, "edit", errCardNotFound)
	}
	if err != nil {
		return h.fail(c, "storage", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) reorderCards(c echo.Context) error {
	var req reorderRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	s, err := h.session(c)
	if err != nil {
		return h.fail(c, "session", err)
	}
	s.DragEnd(req.ActiveID, req.OverID)
	return c.JSON(http.StatusOK, cardsResponse{Cards: s.Cards()})
}

// fail writes the error response for err. Remote failures are logged; the
// optimistic state already applied is kept.
func (h *handlers) fail(c echo.Context, stage string, err error) error {
	status := statusFor(err)
	metricsFrom(c).SetErrorStage(stage)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.log.WithFields(log.Fields{
			"route":   c.Path(),
			"user_id": userID(c),
			"stage":   stage,
		}).WithError(err).Error("request failed")
		msg = http.StatusText(status)
	}
	return c.JSON(status, errorResponse{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, board.ErrNotFound), errors.Is(err, errCardNotFound):
		return http.StatusNotFound
	case errors.Is(err, board.ErrInvalidField), errors.Is(err, board.ErrInvalidRatio):
		return http.StatusBadRequest
	}
	var re *storage.RemoteError
	if errors.As(err, &re) {
		if re.NotFound() {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
