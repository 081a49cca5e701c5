package core

// Response is the envelope handed to presentation layers: a failure is data,
// never a panic.
type Response struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg,omitempty"`
	Kind    Kind   `json:"kind,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func OK(data any) Response {
	return Response{Success: true, Data: data}
}

func OKMsg(msg string, data any) Response {
	return Response{Success: true, Msg: msg, Data: data}
}

func Fail(err error) Response {
	if err == nil {
		return Response{Success: false}
	}
	return Response{Success: false, Msg: err.Error(), Kind: KindOf(err)}
}
