// Package solar implements a Discord bot that keeps an attendance log of
// when a group leaves to eat and when it returns, and talks to a chat model
// in the persona of Solar, a dwarf hamster.
//
// The attendance log is a table (a Google Sheets worksheet, or a SQL table
// with the same layout) where the first row is a header, and each following
// row holds a "time left" in column A, a "time returned" in column B and
// the date in column D.
//
// Components:
//
//   - Bot: Connects everything, and handles interactions.
//   - AttendanceLog: Decides which row to write for each command, and
//     writes it to a TableStore.
//   - SheetsStore, DatabaseStore: TableStore implementations.
//   - Completer: Sends prompts to an OpenAI-compatible API (Groq, by
//     default) or Gemini.
//   - Discord: Manages the gateway session and command registration.
//   - DiscordWebhookServer: Optionally receives interactions via HTTP.
//   - KeepAliveServer: Answers uptime monitors.
//
// Commands:
//
//   - /left: Logs the time left
//   - /returned: Logs the time returned
//   - /prayer: Generates a prayer for Solar
//   - /inquire: Asks Solar a question
package solar
