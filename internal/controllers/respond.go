package controllers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"blogauth/internal/apperr"
	"blogauth/internal/logging"
	"blogauth/internal/upload"
)

// UseJSONFieldNames makes validation errors name fields by their json tag.
func UseJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// validationMessage renders the first failed rule of a binding error.
func validationMessage(err error) string {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return "invalid request body"
	}
	fe := ves[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, fe.Param())
	case "eqfield":
		return field + " does not match"
	case "numeric":
		return field + " must contain digits only"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	default:
		return field + " is invalid"
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"message": validationMessage(err),
		"error":   apperr.KindValidation.String(),
	})
}

// fail writes the error envelope. Internal causes are logged, never sent.
func fail(c *gin.Context, logger logging.Logger, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "err", err)
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{
		"message": apperr.PublicMessage(err),
		"error":   kind.String(),
	})
}

func setBearer(c *gin.Context, tok string) {
	c.Header("Authorization", "Bearer "+tok)
}

// readImage loads an optional multipart file. ok is false when the field is
// absent.
func readImage(c *gin.Context, field string) (img upload.Image, ok bool, err error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return upload.Image{}, false, nil
	}
	if err != nil {
		return upload.Image{}, false, apperr.Validation("invalid multipart form")
	}
	if fh.Size > upload.MaxImageSize {
		return upload.Image{}, false, apperr.Validation(upload.ErrTooLarge.Error())
	}
	data, err := readPart(fh)
	if err != nil {
		return upload.Image{}, false, apperr.Internal("read upload", err)
	}
	return upload.Image{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, true, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, upload.MaxImageSize+1))
}
