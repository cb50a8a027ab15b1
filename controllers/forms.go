package controllers

import (
	"errors"
	"strings"

	"lanos_go/forms"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// FormController serves the public registration forms.
type FormController struct {
	store *forms.Store
}

func NewFormController(store *forms.Store) *FormController {
	return &FormController{store: store}
}

type formSummary struct {
	ID     string           `json:"id"`
	Title  string           `json:"title"`
	Target forms.TargetKind `json:"target"`
}

// EditRequest changes one field. Value replaces the field's value; Toggle
// flips one option of a checkbox or multi-select field.
type EditRequest struct {
	Field  string  `json:"field"`
	Value  any     `json:"value"`
	Toggle *string `json:"toggle"`
}

// SubmitRequest carries a complete form for one-shot submission.
type SubmitRequest struct {
	Values map[string]any `json:"values"`
}

// ListForms returns the available forms
func (fc *FormController) ListForms(c *fiber.Ctx) error {
	list := fc.store.Registry().List()
	out := make([]formSummary, 0, len(list))
	for _, s := range list {
		out = append(out, formSummary{ID: s.ID, Title: s.Title, Target: s.Target.Kind})
	}
	return c.JSON(fiber.Map{"forms": out})
}

// GetForm returns one form definition
func (fc *FormController) GetForm(c *fiber.Ctx) error {
	schema, err := fc.store.Registry().Get(c.Params("form"))
	if err != nil {
		return formError(c, err)
	}
	return c.JSON(schema)
}

// OpenSession starts a form session. Query parameters prefill hidden fields.
func (fc *FormController) OpenSession(c *fiber.Ctx) error {
	ctrl, err := fc.store.Open(c.UserContext(), c.Params("form"), queryPrefill(c))
	if err != nil {
		return formError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ctrl.Snapshot())
}

func (fc *FormController) GetSession(c *fiber.Ctx) error {
	ctrl, err := fc.store.Get(c.Params("id"))
	if err != nil {
		return formError(c, err)
	}
	return c.JSON(ctrl.Snapshot())
}

// UpdateSession applies one edit and returns the new state.
func (fc *FormController) UpdateSession(c *fiber.Ctx) error {
	ctrl, err := fc.store.Get(c.Params("id"))
	if err != nil {
		return formError(c, err)
	}

	var req EditRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Field == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "field is required",
		})
	}

	if req.Toggle != nil {
		err = ctrl.Toggle(req.Field, *req.Toggle)
	} else {
		err = ctrl.Set(req.Field, req.Value)
	}
	if err != nil {
		return formError(c, err)
	}
	return c.JSON(ctrl.Snapshot())
}

// SubmitSession submits the session's current values.
func (fc *FormController) SubmitSession(c *fiber.Ctx) error {
	ctrl, err := fc.store.Get(c.Params("id"))
	if err != nil {
		return formError(c, err)
	}
	res, err := ctrl.Submit(c.UserContext())
	if err != nil {
		return formError(c, err)
	}
	return c.Status(statusForResult(res)).JSON(fiber.Map{
		"result":  res,
		"session": ctrl.Snapshot(),
	})
}

// AcknowledgeSession dismisses the success message.
func (fc *FormController) AcknowledgeSession(c *fiber.Ctx) error {
	ctrl, err := fc.store.Get(c.Params("id"))
	if err != nil {
		return formError(c, err)
	}
	ctrl.Acknowledge()
	return c.JSON(ctrl.Snapshot())
}

func (fc *FormController) CloseSession(c *fiber.Ctx) error {
	if !fc.store.Close(c.Params("id")) {
		return formError(c, forms.ErrSessionNotFound)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Submit fills a fresh controller from the request body and submits it in
// one call. Values for fields locked by a dependency are ignored, and hidden
// fields are taken from the body when the query string does not carry them.
func (fc *FormController) Submit(c *fiber.Ctx) error {
	var req SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	schema, err := fc.store.Registry().Get(c.Params("form"))
	if err != nil {
		return formError(c, err)
	}

	prefill := queryPrefill(c)
	for _, f := range schema.Fields {
		v, ok := req.Values[f.Name].(string)
		if f.Kind != forms.KindHidden || !ok || len(f.QueryParams) == 0 {
			continue
		}
		if _, set := prefill[f.QueryParams[0]]; !set {
			prefill[f.QueryParams[0]] = v
		}
	}

	ctrl, err := fc.store.New(c.UserContext(), schema.ID, prefill)
	if err != nil {
		return formError(c, err)
	}

	details := map[string]string{}
	for name := range req.Values {
		if schema.Field(name) == nil {
			details[name] = "unknown field"
		}
	}
	for _, f := range schema.Fields {
		v, ok := req.Values[f.Name]
		if !ok || f.Kind == forms.KindHidden {
			continue
		}
		if err := ctrl.Set(f.Name, v); err != nil {
			if errors.Is(err, forms.ErrFieldLocked) {
				continue
			}
			details[f.Name] = err.Error()
		}
	}
	if len(details) > 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   "Invalid form values",
			"details": details,
		})
	}

	res, err := ctrl.Submit(c.UserContext())
	if err != nil {
		return formError(c, err)
	}
	return c.Status(statusForResult(res)).JSON(res)
}

// queryPrefill copies the query parameters out of the request buffer, which
// fasthttp reuses for the next request on the connection.
func queryPrefill(c *fiber.Ctx) map[string]string {
	q := c.Queries()
	out := make(map[string]string, len(q))
	for k, v := range q {
		out[strings.Clone(k)] = strings.Clone(v)
	}
	return out
}

func statusForResult(res forms.SubmissionResult) int {
	switch res.Outcome {
	case forms.OutcomeSuccess:
		return fiber.StatusOK
	case forms.OutcomeInvalid:
		return fiber.StatusUnprocessableEntity
	case forms.OutcomeConflict:
		return fiber.StatusConflict
	case forms.OutcomeRejected:
		if len(res.Details) > 0 {
			return fiber.StatusUnprocessableEntity
		}
		return fiber.StatusBadRequest
	default:
		return fiber.StatusBadGateway
	}
}

// formError maps controller errors to HTTP answers.
func formError(c *fiber.Ctx, err error) error {
	body := fiber.Map{"error": err.Error()}
	var fe *forms.FieldError
	if errors.As(err, &fe) {
		body["field"] = fe.Field
	}

	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, forms.ErrUnknownForm), errors.Is(err, forms.ErrSessionNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, forms.ErrSubmissionInFlight):
		status = fiber.StatusTooManyRequests
	case errors.Is(err, forms.ErrSubmitting),
		errors.Is(err, forms.ErrReadOnlyField),
		errors.Is(err, forms.ErrFieldLocked):
		status = fiber.StatusConflict
	case errors.Is(err, forms.ErrUnknownField):
		status = fiber.StatusBadRequest
	case errors.Is(err, forms.ErrInvalidValue):
		status = fiber.StatusUnprocessableEntity
	default:
		logrus.WithError(err).Error("form request failed")
		body["error"] = "Internal server error"
	}
	return c.Status(status).JSON(body)
}
