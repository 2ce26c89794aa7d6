// Package mcp exposes the governance engine to agents over the Model Context
// Protocol.
//
// Two tools are registered: propose_action submits a proposal and reports
// whether it auto-executed or is waiting for review, and action_status lets
// the agent poll the outcome. Agents cannot review, so nothing here changes
// a proposal after submission.
package mcp
