package context

type Key string

const (
	Auth   Key = "auth"
	Params Key = "params"
)
