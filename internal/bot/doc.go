// Package bot turns chat messages into record store operations.
//
// The Dispatcher is transport-agnostic: it takes a Message and returns a
// Reply. The Gateway adapts it to Telegram long polling. Commands:
//
//	/start                         welcome text
//	/add id,user,pass,expire,off   admin only
//	/remove <id>                   admin only
//	/check <id>                    anyone; shows username, password, expiry
//	/list                          admin only
//	/history                       admin only; recent audit entries
//	<any other text>               device id lookup
//
// Administration is a single equality check against the configured admin
// id. There is no role system.
package bot
