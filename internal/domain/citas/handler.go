package citas

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicadental/agenda/internal/domain/identity"
	"github.com/clinicadental/agenda/internal/platform/auth"
	"github.com/clinicadental/agenda/pkg/pagination"
	"github.com/clinicadental/agenda/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/citas")

	// Categories are public; availability needs any signed-in user
	g.GET("/categorias", h.ListCategorias)
	g.GET("/horarios-disponibles", h.AvailableSlots)

	// Client endpoints
	client := g.Group("", auth.RequireRole(string(identity.RoleCliente)))
	client.POST("", h.Book)
	client.GET("/mis-citas", h.ListMine)

	// Reception endpoints – receptionist, admin
	staff := g.Group("", auth.RequireRole(string(identity.RoleRecepcionista)))
	staff.GET("/pendientes", h.ListPending)
	staff.GET("/odontologos", h.ListDentists)
	staff.PUT("/:id/asignar-odontologo", h.Assign)

	// Dentist endpoints
	dentist := g.Group("", auth.RequireRole(string(identity.RoleOdontologo)))
	dentist.GET("/odontologo/mis-citas", h.ListDentistQueue)
	dentist.PUT("/:id/iniciar", h.Start)
	dentist.PUT("/:id/completar", h.Complete)

	// Ownership is checked by the service
	g.GET("/:id", h.Get)
	g.PUT("/:id/cancelar", h.Cancel)
	g.PUT("/:id/reagendar", h.Reschedule)
	g.PUT("/:id/no-asistio", h.MarkNoShow)
}

// HTTPStatus maps a domain error kind to its response status.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindPrecondition:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail converts domain errors into HTTP errors. Anything else is returned
// as is and rendered as a generic 500 by the error handler.
func fail(err error) error {
	var de *Error
	if errors.As(err, &de) {
		return echo.NewHTTPError(HTTPStatus(de.Kind), de.Message).SetInternal(de)
	}
	return err
}

func actorFrom(c echo.Context) (Actor, error) {
	ctx := c.Request().Context()
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "Token de autenticación requerido")
	}
	return Actor{ID: id, Roles: auth.RolesFromContext(ctx)}, nil
}

func citaID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fail(ValidationError(map[string]string{"id": "Identificador de cita inválido"}))
	}
	return id, nil
}

func bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Cuerpo de la solicitud inválido").SetInternal(err)
	}
	return nil
}

func page(c echo.Context, items []*Cita, total int, p pagination.Params, mensaje string) error {
	if items == nil {
		items = []*Cita{}
	}
	return response.OK(c, mensaje, pagination.NewResponse(items, total, p))
}

// -- Catalogue --

func (h *Handler) ListCategorias(c echo.Context) error {
	return response.OK(c, "Categorías obtenidas", Categorias())
}

func (h *Handler) AvailableSlots(c echo.Context) error {
	fecha := c.QueryParam("fecha")
	slots, err := h.svc.AvailableSlots(c.Request().Context(), fecha)
	if err != nil {
		return fail(err)
	}
	return response.OK(c, "Horarios disponibles obtenidos", map[string]interface{}{
		"fecha":               fecha,
		"horariosDisponibles": slots,
	})
}

// -- Client --

func (h *Handler) Book(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req BookRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	cita, err := h.svc.Book(c.Request().Context(), actor, req)
	if err != nil {
		return fail(err)
	}
	return response.Created(c, "Cita agendada exitosamente, queda pendiente de asignación", cita)
}

func (h *Handler) ListMine(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMine(c.Request().Context(), actor, c.QueryParam("estado"), pg.Limit, pg.Offset())
	if err != nil {
		return fail(err)
	}
	return page(c, items, total, pg, "Citas obtenidas")
}

func (h *Handler) Get(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := citaID(c)
	if err != nil {
		return err
	}
	cita, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return fail(err)
	}
	return response.OK(c, "Cita obtenida", cita)
}

type cancelRequest struct {
	MotivoCancelacion *string `json:"motivoCancelacion"`
}

func (h *Handler) Cancel(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := citaID(c)
	if err != nil {
		return err
	}
	var req cancelRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	cita, err := h.svc.Cancel(c.Request().Context(), actor, id, req.MotivoCancelacion)
	if err != nil {
		return fail(err)
	}
	return response.OK(c, "Cita cancelada exitosamente", cita)
}

func (h *Handler) Reschedule(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := citaID(c)
	if err != nil {
		return err
	}
	var req RescheduleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	cita, err := h.svc.Reschedule(c.Request().Context(), actor, id, req)
	if err != nil {
		return fail(err)
	}
	return response.OK(c, "Cita reagendada exitosamente, queda pendiente de asignación", cita)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := citaID(c)
	if err != nil {
		return err
	}
	cita, err := h.svc.MarkNoShow(c.Request().Context(), actor, id)
	if err != nil {
		return fail(err)
	}
	return response.OK(c, "Cita marcada como no asistida", cita)
}

// -- Reception --

func (h *Handler) ListPending(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPending(c.Request().Context(), c.QueryParam("fecha"), pg.Limit, pg.Offset())
	if err != nil {
		return fail(err)
	}
	return page(c, items, total, pg, "Citas pendientes obtenidas")
}

func (h *Handler) ListDentists(c echo.Context) error {
	dentists, err := h.svc.ListDentists(c.Request().Context())
	if err != nil {
		return fail(err)
	}
	return response.OK(c, "Odontólogos obtenidos", dentists)
}

type assignRequest struct {
	OdontologoID  string  `json:"odontologoId"`
	Observaciones *string `json:"observaciones"`
}

func (h *Handler) Assign(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := citaID(c)
	if err != nil {
		return err
	}
	var req assignRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.OdontologoID == "" {
		return fail(ValidationError(map[string]string{"odontologoId": "El odontólogo es requerido"}))
	}
	dentistID, err := uuid.Parse(req.OdontologoID)
	if err != nil {
		return fail(ValidationError(map[string]string{"odontologoId": "Identificador de odontólogo inválido"}))
	}
	cita, err := h.svc.Assign(c.Request().Context(), actor, id, dentistID, req.Observaciones)
	if err != nil {
		return fail(err)
	}
	return response.OK(c, "Odontólogo asignado exitosamente", cita)
}

// -- Dentist --

func (h *Handler) ListDentistQueue(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDentistQueue(c.Request().Context(), actor,
		c.QueryParam("estado"), c.QueryParam("fecha"), pg.Limit, pg.Offset())
	if err != nil {
		return fail(err)
	}
	return page(c, items, total, pg, "Citas asignadas obtenidas")
}

func (h *Handler) Start(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := citaID(c)
	if err != nil {
		return err
	}
	cita, err := h.svc.Start(c.Request().Context(), actor, id)
	if err != nil {
		return fail(err)
	}
	return response.OK(c, "Cita iniciada", cita)
}

type completeRequest struct {
	NotasOdontologo *string `json:"notasOdontologo"`
}

func (h *Handler) Complete(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := citaID(c)
	if err != nil {
		return err
	}
	var req completeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	cita, err := h.svc.Complete(c.Request().Context(), actor, id, req.NotasOdontologo)
	if err != nil {
		return fail(err)
	}
	return response.OK(c, "Cita completada", cita)
}
