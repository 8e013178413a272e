package gpu

// nodeBinding is the engine node and context kind a function type runs on.
type nodeBinding struct {
	node Node
	ctx  ContextType
}

var nodeTable = map[FuncType]nodeBinding{
	FuncDecode:    {NodeVideo, ContextVideoDecode},
	FuncEncode:    {NodeVideo, ContextVideoPAK},
	FuncComputeVP: {NodeCompute, ContextCompute},
	FuncVeboxVP:   {NodeVideo, ContextVebox},
	FuncRender:    {NodeRender, ContextRender},
}

// NodeFor maps a function type onto its engine node and context type.
func NodeFor(f FuncType) (Node, ContextType, error) {
	b, ok := nodeTable[f]
	if !ok {
		return NodeInvalid, ContextInvalid, NewFuncError("CREATE_CONTEXT", f, CodeInvalidParameter, "unknown function type")
	}
	return b.node, b.ctx, nil
}
