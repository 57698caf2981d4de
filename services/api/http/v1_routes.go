package http

// registerV1Routes sets up the v1 API structure
// Groups: /api/v1/core, /api/v1/realtime, /api/v1/forecast, /api/v1/export
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware())
	v1.Use(s.authMiddleware())

	// Core endpoints - box, sensor metadata and plot series
	core := v1.Group("/core")
	{
		core.GET("/box", s.handleV1Box)
		core.GET("/sensors", s.handleV1ListSensors)
		core.GET("/series", s.handleV1Series)
	}

	// Realtime endpoints - manual fetch and live push
	realtime := v1.Group("/realtime")
	{
		realtime.POST("/fetch", s.handleV1RealtimeFetch)
		realtime.GET("/ws", s.handleV1RealtimeWS)
	}

	v1.GET("/forecast", s.handleV1Forecast)

	export := v1.Group("/export")
	{
		export.GET("/series.xlsx", s.handleV1ExportSeries)
		export.GET("/forecast.pdf", s.handleV1ExportForecast)
	}
}
