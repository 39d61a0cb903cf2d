package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	mw "github.com/hearthchat/server/middleware"
)

// ValidationIssue describes one rejected request field.
type ValidationIssue struct {
	Type     string      `json:"type"`
	Value    interface{} `json:"value"`
	Msg      string      `json:"msg"`
	Path     string      `json:"path"`
	Location string      `json:"location"`
}

var (
	usernameChars = regexp.MustCompile(`^[a-zA-Z0-9 ]*$`)
	passwordChars = regexp.MustCompile(`^[a-zA-Z0-9!@#$%^&*]*$`)
	aboutChars    = regexp.MustCompile(`^[a-zA-Z0-9!@#$%^&* ]*$`)
)

var registerOnce sync.Once

// registerValidators adds the custom rules to gin's validator engine.
func registerValidators() {
	registerOnce.Do(func() {
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
		_ = v.RegisterValidation("usernamechars", matches(usernameChars))
		_ = v.RegisterValidation("passwordchars", matches(passwordChars))
		_ = v.RegisterValidation("aboutchars", matches(aboutChars))
	})
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// messages maps "<form>.<field>.<rule>" to the message shown to the client.
// A missing rule falls back to "<form>.<field>".
var messages = map[string]string{
	"credentials.username":               "Username must be between 1 and 20 characters long",
	"credentials.username.usernamechars": "Username must only have characters numbers and spaces",
	"credentials.password":               "Password must be between 6 and 32 characters long",
	"credentials.password.passwordchars": "Password can only contain letters, numbers, and special characters (!@#$%^&*).",
	"profile.username":                   "Username has a limit of 20 characters long",
	"profile.username.usernamechars":     "Username must only have characters numbers and spaces",
	"profile.about":                      "About me has a limit of 200 characters long",
	"profile.about.aboutchars":           "About me can only contain letters, numbers, spaces, and special characters (!@#$%^&*).",
}

func messageFor(form, field, rule string) string {
	if m, ok := messages[form+"."+field+"."+rule]; ok {
		return m
	}
	if m, ok := messages[form+"."+field]; ok {
		return m
	}
	return "Invalid value"
}

type credentialsRequest struct {
	Username string `json:"username" binding:"min=1,max=20,usernamechars"`
	Password string `json:"password" binding:"min=6,max=32,passwordchars"`
}

func (r *credentialsRequest) normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Password = strings.TrimSpace(r.Password)
}

// loginRequest carries no format rules: any credential that does not
// match an account is reported as a generic authentication failure.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *loginRequest) normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Password = strings.TrimSpace(r.Password)
}

// decodeBody reads an optional JSON body into req and trims it.
func decodeBody(c *gin.Context, req normalizer) error {
	if c.Request.Body != nil {
		err := json.NewDecoder(c.Request.Body).Decode(req)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
	}
	req.normalize()
	return nil
}

type profileRequest struct {
	Username *string `json:"username" binding:"omitempty,max=20,usernamechars"`
	About    *string `json:"about" binding:"omitempty,max=200,aboutchars"`
}

func (r *profileRequest) normalize() {
	if r.Username != nil {
		s := strings.TrimSpace(*r.Username)
		// A blank display name means "leave unchanged".
		if s == "" {
			r.Username = nil
		} else {
			r.Username = &s
		}
	}
	if r.About != nil {
		s := strings.TrimSpace(*r.About)
		r.About = &s
	}
}

type normalizer interface {
	normalize()
}

const malformedBody = "Invalid request body"

// bindBody decodes the JSON body into req, trims it and validates it. On
// failure it writes the 400 envelope and returns false.
func bindBody(c *gin.Context, form string, req normalizer) bool {
	registerValidators()

	if err := decodeBody(c, req); err != nil {
		mw.AbortWithError(c, http.StatusBadRequest, malformedBody)
		return false
	}

	err := binding.Validator.ValidateStruct(req)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		mw.AbortWithError(c, http.StatusBadRequest, err.Error())
		return false
	}
	issues := make([]ValidationIssue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, ValidationIssue{
			Type:     "field",
			Value:    fe.Value(),
			Msg:      messageFor(form, fe.Field(), fe.Tag()),
			Path:     fe.Field(),
			Location: "body",
		})
	}
	mw.AbortWithError(c, http.StatusBadRequest, issues)
	return false
}
