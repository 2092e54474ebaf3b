package server

import (
	"github.com/gin-gonic/gin"

	"github.com/krau/konabatch/labels"
	"github.com/krau/konabatch/service"
)

// Server tags single uploaded images. Concurrent requests share one predictor,
// which serializes engine access itself.
type Server struct {
	predictor service.Predictor
	analyzer  *labels.Analyzer
	prep      service.PreprocessOptions
	token     string
}

func New(p service.Predictor, a *labels.Analyzer, prep service.PreprocessOptions, token string) *Server {
	return &Server{
		predictor: p,
		analyzer:  a,
		prep:      prep,
		token:     token,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	r.POST("/predict", s.PredictHandler)
	r.GET("/health", HealthHandler)
	return r
}
