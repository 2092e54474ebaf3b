package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/krau/konabatch/labels"
	"github.com/krau/konabatch/service"
)

var (
	errUnauthorized = errors.New("unauthorized")
)

func (s *Server) authenticate(c *gin.Context) error {
	auth := c.GetHeader("Authorization")

	expectedToken := s.token
	if expectedToken == "" {
		return nil
	}
	providedToken := ""
	if len(auth) > 7 && auth[:7] == "Bearer " {
		providedToken = auth[7:]
	}
	if subtle.ConstantTimeCompare([]byte(providedToken), []byte(expectedToken)) != 1 {
		return errUnauthorized
	}

	return nil
}

func (s *Server) PredictHandler(c *gin.Context) {
	if err := s.authenticate(c); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open uploaded file"})
		return
	}
	defer file.Close()

	img, err := service.Decode(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot decode image"})
		return
	}

	resp, err := s.Tag(c.Request.Context(), img)
	if err != nil {
		if errors.Is(err, service.ErrDecode) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot decode image"})
			return
		}
		slog.Error("Prediction failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "inference failed"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Tag runs one image through preprocessing, the predictor and the analyzer.
func (s *Server) Tag(ctx context.Context, img image.Image) (*labels.Result, error) {
	tensor, err := service.Preprocess(img, s.predictor.TargetSize(), s.prep)
	if err != nil {
		return nil, err
	}
	batch, err := service.Stack([]service.ImageTensor{tensor})
	if err != nil {
		return nil, err
	}
	scores, err := s.predictor.Predict(ctx, batch)
	if err != nil {
		return nil, err
	}
	if scores.Rows != 1 || scores.Cols != s.analyzer.Schema().Len() {
		return nil, fmt.Errorf("%w: got %dx%d scores for %d tags", service.ErrInference, scores.Rows, scores.Cols, s.analyzer.Schema().Len())
	}
	res := s.analyzer.Analyze(scores.Row(0))
	return &res, nil
}

func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
