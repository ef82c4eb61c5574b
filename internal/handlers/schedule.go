package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/devoll/rhga-schedule-bot/internal/models"
	"github.com/devoll/rhga-schedule-bot/internal/repository"
	"github.com/devoll/rhga-schedule-bot/internal/timetable"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// Queries is the read side of timetable.Service.
type Queries interface {
	NextDay(ctx context.Context) (time.Time, []models.Timetable, error)
	ScheduleForGroup(ctx context.Context, group string) ([]models.Timetable, error)
	NextDayMessage(ctx context.Context) (string, error)
	GroupMessage(ctx context.Context, group string) (string, error)
}

// GroupFinder lists stored groups loosely matching a pattern.
type GroupFinder interface {
	GetUniqueGroups(ctx context.Context, pattern string) ([]string, error)
}

// ScheduleHandler answers schedule questions for the HTTP API, the web chat
// and the Telegram bot. Rendered texts are cached until the next sync.
type ScheduleHandler struct {
	Queries Queries
	Groups  GroupFinder
	Cache   *cache.Cache
	now     func() time.Time
}

func NewScheduleHandler(q Queries, groups GroupFinder, ttl time.Duration) *ScheduleHandler {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &ScheduleHandler{
		Queries: q,
		Groups:  groups,
		Cache:   cache.New(ttl, 10*time.Minute),
		now:     time.Now,
	}
}

// Invalidate drops every cached answer. Called after each sync.
func (h *ScheduleHandler) Invalidate() {
	h.Cache.Flush()
}

// NextDayMessage devuelve el texto de /next, cacheado por día.
func (h *ScheduleHandler) NextDayMessage(ctx context.Context) (string, error) {
	key := "next:" + h.now().UTC().Format("2006-01-02")
	if v, ok := h.Cache.Get(key); ok {
		return v.(string), nil
	}
	msg, err := h.Queries.NextDayMessage(ctx)
	if err != nil {
		return msg, err
	}
	h.Cache.Set(key, msg, cache.DefaultExpiration)
	return msg, nil
}

func (h *ScheduleHandler) GroupMessage(ctx context.Context, group string) (string, error) {
	group = strings.TrimSpace(group)
	key := "group:" + group
	if v, ok := h.Cache.Get(key); ok {
		return v.(string), nil
	}
	msg, err := h.Queries.GroupMessage(ctx, group)
	if err != nil {
		return msg, err
	}
	h.Cache.Set(key, msg, cache.DefaultExpiration)
	return msg, nil
}

// ResolveGroup maps free text to a stored group. It returns the group when
// there is a single or exact match, otherwise the candidates.
func (h *ScheduleHandler) ResolveGroup(ctx context.Context, input string) (string, []string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", nil, nil
	}
	matches, err := h.Groups.GetUniqueGroups(ctx, input)
	if err != nil {
		return "", nil, err
	}
	switch len(matches) {
	case 0:
		return "", nil, nil
	case 1:
		return matches[0], nil, nil
	}
	for _, m := range matches {
		if repository.Normalize(m) == repository.Normalize(input) {
			return m, nil, nil
		}
	}
	return "", matches, nil
}

// GetNextDay handles GET /schedule/next
func (h *ScheduleHandler) GetNextDay(c *gin.Context) {
	date, items, err := h.Queries.NextDay(c.Request.Context())
	if errors.Is(err, timetable.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": timetable.MsgNoUpcoming})
		return
	}
	if err != nil {
		log.Printf("Error reading next day: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": timetable.MsgQueryFailed})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"date":  date.Format("2006-01-02"),
		"items": items,
		"text":  timetable.FormatDay(date, items),
	})
}

// GetGroup handles GET /schedule/groups/:group
func (h *ScheduleHandler) GetGroup(c *gin.Context) {
	group := strings.TrimSpace(c.Param("group"))
	items, err := h.Queries.ScheduleForGroup(c.Request.Context(), group)
	if err != nil {
		log.Printf("Error reading group %s: %v", group, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": timetable.MsgQueryFailed})
		return
	}
	if len(items) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf(timetable.MsgNoGroupItems, group)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group, "items": items})
}
