// Package amqp publishes account notifications to RabbitMQ.
//
// The engine never sends email itself; [Publisher] satisfies its Notifier
// interface by emitting JSON messages onto a durable direct exchange, one
// routing key per notification kind. A mailer service consumes the bound
// queues and owns delivery, retries, and templates.
package amqp
