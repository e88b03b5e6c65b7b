package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/systmms/userprofile/internal/profiles"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// CreateProfileRequest is the POST /users form.
type CreateProfileRequest struct {
	UserID  string  `validate:"required,max=128,excludesall=/?#%"`
	Name    string  `validate:"required,max=255"`
	Age     *int    `validate:"omitempty,min=0,max=150"`
	Phone   *string `validate:"omitempty,max=64"`
	Address *string `validate:"omitempty,max=512"`

	Photo *Upload `validate:"-"`
}

// Upload is a received photo file.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// badRequest marks client input errors.
type badRequest struct {
	msg    string
	status int
}

func (e badRequest) Error() string { return e.msg }

// parseCreateProfile reads and validates the form. Both multipart and
// urlencoded bodies are accepted; only multipart can carry a photo.
func parseCreateProfile(r *http.Request, validate *validator.Validate) (*CreateProfileRequest, error) {
	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, badRequest{msg: "request body too large", status: http.StatusRequestEntityTooLarge}
		}
		return nil, badRequest{msg: "invalid form body", status: http.StatusBadRequest}
	}

	req := &CreateProfileRequest{
		UserID:  strings.TrimSpace(r.FormValue("user_id")),
		Name:    strings.TrimSpace(r.FormValue("name")),
		Phone:   optional(r.FormValue("phone")),
		Address: optional(r.FormValue("address")),
	}

	if raw := strings.TrimSpace(r.FormValue("age")); raw != "" {
		age, err := strconv.Atoi(raw)
		if err != nil {
			return nil, badRequest{msg: "age must be a whole number", status: http.StatusBadRequest}
		}
		req.Age = &age
	}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, badRequest{msg: describeValidation(verrs[0]), status: http.StatusBadRequest}
		}
		return nil, badRequest{msg: "invalid form", status: http.StatusBadRequest}
	}

	photo, err := readPhoto(r)
	if err != nil {
		return nil, err
	}
	req.Photo = photo
	return req, nil
}

func describeValidation(fe validator.FieldError) string {
	field := map[string]string{
		"UserID": "user_id", "Name": "name", "Age": "age", "Phone": "phone", "Address": "address",
	}[fe.Field()]

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "excludesall":
		return field + " must not contain '/', '?', '#' or '%'"
	default:
		return field + " is invalid"
	}
}

// readPhoto returns the uploaded photo, or nil when none was sent. Browsers
// submit an empty part when no file is chosen; that counts as none.
func readPhoto(r *http.Request) (*Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	file, header, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, badRequest{msg: "invalid photo upload", status: http.StatusBadRequest}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, badRequest{msg: "invalid photo upload", status: http.StatusBadRequest}
	}
	if len(data) == 0 {
		return nil, nil
	}

	return &Upload{
		Filename:    header.Filename,
		ContentType: photoContentType(header, data),
		Data:        data,
	}, nil
}

func photoContentType(header *multipart.FileHeader, data []byte) string {
	ct := header.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		return http.DetectContentType(data)
	}
	return ct
}

// photoBlobName places the photo under the user's prefix. The client's file
// name is reduced to its base; without a usable one a random name is used.
func photoBlobName(userID, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	base = strings.TrimSpace(base)
	if base == "" || base == "." || base == "/" || base == ".." {
		base = uuid.NewString()
	}
	return userID + "/" + base
}

func (req *CreateProfileRequest) profile() *profiles.UserProfile {
	return &profiles.UserProfile{
		UserID:  req.UserID,
		Name:    req.Name,
		Age:     req.Age,
		Phone:   req.Phone,
		Address: req.Address,
	}
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
