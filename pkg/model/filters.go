package model

type ModelFilter = func(id string, m *Model) bool

func all(_ string, _ *Model) bool {
	return true
}

func allExcept(s string) ModelFilter {
	return func(id string, _ *Model) bool {
		return id != s
	}
}
