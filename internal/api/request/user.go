package request

type SetUserAdmin struct {
	Admin bool `json:"admin"`
}
