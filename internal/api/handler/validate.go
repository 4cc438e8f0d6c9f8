package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mradl/mradl/internal/api/middleware"
	"github.com/mradl/mradl/internal/api/models"
	"github.com/mradl/mradl/internal/api/response"
)

// validate reports field errors under their JSON names.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON decodes and validates the request body into dst. On failure
// it writes a 400 problem and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return false
	}

	if err := validate.Struct(dst); err != nil {
		response.BadRequest(w, r, "validation error", fieldErrors(err))
		return false
	}

	return true
}

func fieldErrors(err error) []models.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make([]models.FieldError, len(verrs))
	for i, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		out[i] = models.FieldError{
			Field:   field,
			Message: "failed " + fe.Tag() + " validation",
			Code:    strings.ToUpper(fe.Tag()),
		}
	}
	return out
}

// riderID is the authenticated user; it doubles as the client id for
// route selections and trip sessions.
func riderID(r *http.Request) string {
	return middleware.GetUserID(r.Context())
}

func toPoint(lat, lng float64) models.Point {
	return models.Point{Lat: lat, Lng: lng}
}
