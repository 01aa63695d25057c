package httpapi

type createPermissionRequest struct {
	Key         string `json:"key" validate:"required,max=100"`
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=1000"`
	Module      string `json:"module" validate:"required,max=100"`
}

type updatePermissionRequest struct {
	Name        string `json:"name" validate:"max=255"`
	Description string `json:"description" validate:"max=1000"`
	Module      string `json:"module" validate:"max=100"`
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=1000"`
	Color       string   `json:"color" validate:"omitempty,hexcolor"`
	Permissions []string `json:"permissions" validate:"dive,required"`
}

type updateRoleRequest struct {
	Name        *string   `json:"name" validate:"omitempty,max=100"`
	Description *string   `json:"description" validate:"omitempty,max=1000"`
	Color       *string   `json:"color" validate:"omitempty,hexcolor"`
	Permissions *[]string `json:"permissions" validate:"omitempty,dive,required"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id" validate:"required,uuid"`
}

type directPermissionRequest struct {
	Granted *bool `json:"granted" validate:"required"`
}

type checkPermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required,min=1,max=100,dive,required"`
}
