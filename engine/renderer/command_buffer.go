package renderer

import (
	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
	"github.com/Carmen-Shannon/oxy-link/engine/renderer/pipeline"
)

type commandKind int

const (
	commandBindPipeline commandKind = iota
	commandBindUniforms
	commandSetVertexBuffer
	commandSetIndexBuffer
	commandDraw
	commandDrawIndexed
)

// command is one recorded entry of a commandList.
type command struct {
	kind      commandKind
	pipeline  pipeline.Pipeline
	buffer    Buffer
	indexType geometry.IndexType
	count     uint32
}

// commandList records commands on the host. Backends replay it at submission, which keeps
// recording free of device calls and lets a command buffer be reset and re-recorded per frame.
type commandList struct {
	commands []command
	released bool
}

var _ CommandBuffer = &commandList{}

func newCommandList() *commandList {
	return &commandList{commands: make([]command, 0, 8)}
}

func (c *commandList) Reset() {
	c.commands = c.commands[:0]
}

func (c *commandList) BindPipeline(p pipeline.Pipeline) {
	c.commands = append(c.commands, command{kind: commandBindPipeline, pipeline: p})
}

func (c *commandList) BindUniforms(buf Buffer) {
	c.commands = append(c.commands, command{kind: commandBindUniforms, buffer: buf})
}

func (c *commandList) SetVertexBuffer(buf Buffer) {
	c.commands = append(c.commands, command{kind: commandSetVertexBuffer, buffer: buf})
}

func (c *commandList) SetIndexBuffer(buf Buffer, indexType geometry.IndexType) {
	c.commands = append(c.commands, command{kind: commandSetIndexBuffer, buffer: buf, indexType: indexType})
}

func (c *commandList) Draw(vertexCount uint32) {
	c.commands = append(c.commands, command{kind: commandDraw, count: vertexCount})
}

func (c *commandList) DrawIndexed(indexCount uint32) {
	c.commands = append(c.commands, command{kind: commandDrawIndexed, count: indexCount})
}

func (c *commandList) Release() {
	c.commands = nil
	c.released = true
}

// snapshot returns a copy of the recorded commands, safe to replay after the list is reset.
func (c *commandList) snapshot() []command {
	out := make([]command, len(c.commands))
	copy(out, c.commands)
	return out
}
