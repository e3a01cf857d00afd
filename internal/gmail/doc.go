// Package gmail sends a single HTML email through the Gmail API on behalf
// of a user who has authorized the relay.
//
// Messages are assembled as a minimal RFC 2822 document, encoded as
// unpadded base64url and submitted as the raw field of users.messages.send
// for the authenticated user ("me").
//
//	sender := gmail.NewSender()
//	sent, err := sender.Send(ctx, gmail.SendRequest{
//	    Credentials: creds,
//	    RedirectURI: "http://localhost:3000/callback",
//	    Tokens:      tokens,
//	    Message: gmail.OutboundMessage{
//	        To:       "recipient@example.com",
//	        Subject:  "Hello",
//	        HTMLBody: "<p>Hi</p>",
//	    },
//	})
package gmail
