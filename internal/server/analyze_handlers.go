package server

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/platepal/backend/internal/inference"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	maxImageBytes       = 10 << 20
	multipartImageField = "image"
)

var errInvalidImage = errors.New("image missing or invalid")

type analyzeImageRequest struct {
	ImageBase64 string                  `json:"image_base64"`
	MIMEType    string                  `json:"mime_type"`
	Location    *inference.LocationHint `json:"location"`
}

type analyzeNameRequest struct {
	FoodName string                  `json:"food_name"`
	Location *inference.LocationHint `json:"location"`
}

func (h *httpHandler) handleAnalyzeImage(c *gin.Context) {
	session, ok := h.sessionFor(c)
	if !ok {
		return
	}
	image, location, err := readAnalyzeImageRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_image"})
		return
	}

	estimate, err := h.analyzer.AnalyzeImage(c.Request.Context(), image, location)
	if err != nil {
		h.respondAnalysisError(c, err)
		return
	}

	photoURL := ""
	if h.photos != nil {
		userID := session.UserID().String()
		photoURL, err = h.photos.Store(c.Request.Context(), userID, image.Data, image.MIMEType)
		if err != nil {
			h.logger.Warn("photo archive failed", zap.String("user_id", userID), zap.Error(err))
			photoURL = ""
		}
	}
	c.JSON(http.StatusOK, newEstimatePayload(estimate, photoURL))
}

func (h *httpHandler) handleAnalyzeName(c *gin.Context) {
	if _, ok := h.sessionFor(c); !ok {
		return
	}
	var request analyzeNameRequest
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.FoodName) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	estimate, err := h.analyzer.AnalyzeName(c.Request.Context(), request.FoodName, request.Location)
	if err != nil {
		h.respondAnalysisError(c, err)
		return
	}
	c.JSON(http.StatusOK, newEstimatePayload(estimate, ""))
}

func (h *httpHandler) respondAnalysisError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, inference.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	case errors.Is(err, inference.ErrMalformedEstimate):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unparseable_estimate"})
	default:
		body := gin.H{"error": "analysis_failed"}
		switch {
		case errors.Is(err, inference.ErrInvalidAPIKey):
			body["reason"] = "invalid_api_key"
		case errors.Is(err, inference.ErrQuotaExceeded):
			body["reason"] = "quota_exceeded"
		case errors.Is(err, inference.ErrModelNotFound):
			body["reason"] = "model_not_found"
		case errors.Is(err, inference.ErrEmptyResponse):
			body["reason"] = "empty_response"
		}
		h.logger.Error("meal analysis failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, body)
	}
}

func readAnalyzeImageRequest(c *gin.Context) (inference.Image, *inference.LocationHint, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageBytes*2)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fileHeader, err := c.FormFile(multipartImageField)
		if err != nil {
			return inference.Image{}, nil, errInvalidImage
		}
		if fileHeader.Size > maxImageBytes {
			return inference.Image{}, nil, errInvalidImage
		}
		file, err := fileHeader.Open()
		if err != nil {
			return inference.Image{}, nil, err
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
		if err != nil || len(data) == 0 || len(data) > maxImageBytes {
			return inference.Image{}, nil, errInvalidImage
		}
		var location *inference.LocationHint
		city, country := c.PostForm("city"), c.PostForm("country")
		if city != "" || country != "" {
			location = &inference.LocationHint{City: city, Country: country}
		}
		return inference.Image{Data: data, MIMEType: fileHeader.Header.Get("Content-Type")}, location, nil
	}

	var request analyzeImageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		return inference.Image{}, nil, err
	}
	data, mimeType, err := decodeImagePayload(request.ImageBase64)
	if err != nil {
		return inference.Image{}, nil, err
	}
	if strings.TrimSpace(request.MIMEType) != "" {
		mimeType = strings.TrimSpace(request.MIMEType)
	}
	return inference.Image{Data: data, MIMEType: mimeType}, request.Location, nil
}

// decodeImagePayload accepts raw base64 or a data URL.
func decodeImagePayload(raw string) ([]byte, string, error) {
	encoded := strings.TrimSpace(raw)
	mimeType := ""
	if strings.HasPrefix(encoded, "data:") {
		meta, data, found := strings.Cut(encoded, ",")
		if !found {
			return nil, "", errInvalidImage
		}
		mimeType, _, _ = strings.Cut(strings.TrimPrefix(meta, "data:"), ";")
		encoded = data
	}
	if encoded == "" {
		return nil, "", errInvalidImage
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", errInvalidImage
	}
	if len(data) > maxImageBytes {
		return nil, "", errInvalidImage
	}
	return data, mimeType, nil
}
