package agent

import (
	"net/http"
	"net/http/pprof"

	metrics "github.com/docker/go-metrics"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/minyk/dcos-metrics/inputs"
)

type registerRequest struct {
	FrameworkID string `json:"framework_id"`
	ExecutorID  string `json:"executor_id"`
}

type endpointResponse struct {
	Host string `json:"host"`
	Port uint32 `json:"port"`
}

// newAPIServer wires the control API. Registration and recovery calls
// land on the assigner, reads come straight from the cache.
func (a *Agent) newAPIServer() *echo.Echo {
	server := echo.New()
	server.HidePort = true
	server.HideBanner = true
	server.Use(middleware.Recover())
	server.Pre(middleware.RemoveTrailingSlash())

	server.GET("/healthz", a.handleHealth)
	server.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	v1 := server.Group("/v1")
	v1.GET("/containers", a.handleListContainers)
	v1.POST("/containers/:id", a.handleRegisterContainer)
	v1.DELETE("/containers/:id", a.handleUnregisterContainer)
	v1.POST("/recover", a.handleRecoverContainers)

	server.Any("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	server.Any("/debug/pprof/cmdline", echo.WrapHandler(http.HandlerFunc(pprof.Cmdline)))
	server.Any("/debug/pprof/profile", echo.WrapHandler(http.HandlerFunc(pprof.Profile)))
	server.Any("/debug/pprof/symbol", echo.WrapHandler(http.HandlerFunc(pprof.Symbol)))
	server.Any("/debug/pprof/trace", echo.WrapHandler(http.HandlerFunc(pprof.Trace)))

	return server
}

func (a *Agent) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (a *Agent) handleRegisterContainer(c echo.Context) error {
	registerRequests.Inc()

	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	endpoint, err := a.assigner.RegisterContainer(
		c.Request().Context(),
		inputs.ContainerID(c.Param("id")),
		inputs.ExecutorInfo{FrameworkID: req.FrameworkID, ExecutorID: req.ExecutorID},
	)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	return c.JSON(http.StatusOK, endpointResponse{Host: endpoint.Host, Port: endpoint.Port})
}

func (a *Agent) handleUnregisterContainer(c echo.Context) error {
	unregisterRequests.Inc()

	a.assigner.UnregisterContainer(c.Request().Context(), inputs.ContainerID(c.Param("id")))
	return c.NoContent(http.StatusNoContent)
}

func (a *Agent) handleListContainers(c echo.Context) error {
	containers := a.cache.GetContainers()

	resp := make(map[string]endpointResponse, len(containers))
	for id, endpoint := range containers {
		resp[string(id)] = endpointResponse{Host: endpoint.Host, Port: endpoint.Port}
	}
	return c.JSON(http.StatusOK, resp)
}

func (a *Agent) handleRecoverContainers(c echo.Context) error {
	var states []inputs.ContainerState
	if err := c.Bind(&states); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	a.assigner.RecoverContainers(c.Request().Context(), states)
	return c.NoContent(http.StatusNoContent)
}
