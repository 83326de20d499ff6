package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"referral-process-measures/internal/measures"
	"referral-process-measures/internal/store"
)

// Querier is the read surface of the measure store used by the API.
type Querier interface {
	Months() []time.Time
	LastMonth() time.Time
	Clinics(month time.Time) []string
	Lookup(q store.Query) any
	ClinicDistributionCount(month time.Time, clinic, dimension, category, priority string) int
	ScoreUsage(month time.Time, clinic string) ([]measures.UsageTestResult, error)
	Pending(status measures.PendingStatus) (measures.DataSource, bool)
}

// Handler provides the read-only query API.
type Handler struct {
	store   Querier
	metrics *Metrics
}

func NewHandler(q Querier, metrics *Metrics) *Handler {
	return &Handler{store: q, metrics: metrics}
}

// RegisterRoutes registers the query API routes under api.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/months", h.ListMonths)
	api.GET("/months/:month/clinics", h.ListClinics)
	api.GET("/months/:month/clinics/:clinic/measures/:name", h.GetMeasure)
	api.GET("/months/:month/clinics/:clinic/distribution", h.GetDistribution)
	api.GET("/months/:month/clinics/:clinic/usage", h.GetUsage)
	api.GET("/pending/:status/clinics/:clinic", h.GetPending)
}

type monthsResponse struct {
	Months  []string `json:"months"`
	Default string   `json:"default"`
}

type measureResponse struct {
	Month   string `json:"month"`
	Clinic  string `json:"clinic"`
	Measure string `json:"measure"`
	Offset  int    `json:"offset"`
	Value   any    `json:"value"`
}

type usageResponse struct {
	Results []measures.UsageTestResult `json:"results"`
	Points  int                        `json:"points"`
	Score   float64                    `json:"score"`
	Percent int                        `json:"percent"`
}

type pendingResponse struct {
	Status  string                   `json:"status"`
	Clinic  string                   `json:"clinic"`
	Ages    []measures.CategoryCount `json:"ages"`
	Reasons []measures.CategoryCount `json:"reasons"`
}

func (h *Handler) ListMonths(c echo.Context) error {
	resp := monthsResponse{Months: []string{}}
	for _, month := range h.store.Months() {
		resp.Months = append(resp.Months, month.Format(dateLayout))
	}
	if last := h.store.LastMonth(); !last.IsZero() {
		resp.Default = last.Format(dateLayout)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListClinics(c echo.Context) error {
	month, err := parseMonth(c.Param("month"))
	if err != nil {
		return err
	}
	clinics := h.store.Clinics(month)
	if clinics == nil {
		clinics = []string{}
	}
	return c.JSON(http.StatusOK, clinics)
}

// GetMeasure returns one cell. kind selects raw, rate or count; offset shifts the month.
func (h *Handler) GetMeasure(c echo.Context) error {
	month, err := parseMonth(c.Param("month"))
	if err != nil {
		return err
	}
	clinic, err := pathValue(c, "clinic")
	if err != nil {
		return err
	}
	name, err := pathValue(c, "name")
	if err != nil {
		return err
	}
	accessor, err := parseAccessor(c.QueryParam("kind"))
	if err != nil {
		return err
	}
	offset := 0
	if v := c.QueryParam("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "offset must be an integer")
		}
	}

	value := h.store.Lookup(store.Query{Accessor: accessor, Month: month, Clinic: clinic, Measure: name, Offset: offset})
	return c.JSON(http.StatusOK, measureResponse{
		Month:   month.Format(dateLayout),
		Clinic:  clinic,
		Measure: name,
		Offset:  offset,
		Value:   value,
	})
}

func (h *Handler) GetDistribution(c echo.Context) error {
	month, err := parseMonth(c.Param("month"))
	if err != nil {
		return err
	}
	clinic, err := pathValue(c, "clinic")
	if err != nil {
		return err
	}
	dimension := c.QueryParam("measure")
	category := c.QueryParam("category")
	if dimension == "" || category == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "measure and category are required")
	}
	count := h.store.ClinicDistributionCount(month, clinic, dimension, category, c.QueryParam("priority"))
	return c.JSON(http.StatusOK, map[string]any{
		"month":    month.Format(dateLayout),
		"clinic":   clinic,
		"measure":  dimension,
		"category": category,
		"priority": c.QueryParam("priority"),
		"count":    count,
	})
}

// GetUsage scores the clinic's usage tests for the month and returns them with totals.
func (h *Handler) GetUsage(c echo.Context) error {
	month, err := parseMonth(c.Param("month"))
	if err != nil {
		return err
	}
	clinic, err := pathValue(c, "clinic")
	if err != nil {
		return err
	}
	results, err := h.store.ScoreUsage(month, clinic)
	if h.metrics != nil {
		h.metrics.observeScoring(err)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	points, score, pct := store.UsageTotals(results)
	return c.JSON(http.StatusOK, usageResponse{Results: results, Points: points, Score: score, Percent: pct})
}

func (h *Handler) GetPending(c echo.Context) error {
	status, err := measures.ParsePendingStatus(c.Param("status"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	clinic, err := pathValue(c, "clinic")
	if err != nil {
		return err
	}
	src, ok := h.store.Pending(status)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "pending snapshot not available")
	}
	return c.JSON(http.StatusOK, pendingResponse{
		Status:  status.SourceStatus(),
		Clinic:  clinic,
		Ages:    src.AgeCounts(clinic),
		Reasons: src.ReasonCounts(clinic),
	})
}

const dateLayout = "2006-01-02"

// parseMonth accepts YYYY-MM or YYYY-MM-DD.
func parseMonth(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01", dateLayout} {
		if t, err := time.Parse(layout, value); err == nil {
			return measures.FirstOfMonth(t), nil
		}
	}
	return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "month must be YYYY-MM or YYYY-MM-DD")
}

func pathValue(c echo.Context, name string) (string, error) {
	value, err := url.PathUnescape(c.Param(name))
	if err != nil || value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return value, nil
}

func parseAccessor(kind string) (store.Accessor, error) {
	switch kind {
	case "", "raw":
		return store.AccessRaw, nil
	case "rate":
		return store.AccessRate, nil
	case "count":
		return store.AccessCount, nil
	}
	return 0, echo.NewHTTPError(http.StatusBadRequest, "kind must be raw, rate or count")
}
