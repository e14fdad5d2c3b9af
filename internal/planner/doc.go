// Package planner runs interactive planning sessions that turn a project
// goal into an approved plan through staged Q&A.
//
// A session starts by asking requirements and scope questions, then moves
// through architecture and verification questions as each stage is fully
// answered. Vague answers do not advance the session; they add a follow-up
// question in the same category instead. Once every question has a usable
// answer the engine derives a draft plan from the answers, and approval
// stores it as version 1 in the plan store. Session phases only move
// forward, and an approved session is immutable.
package planner
